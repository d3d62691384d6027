package ingestion

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSyncInProgress は別の同期が実行中であることを示す
var ErrSyncInProgress = errors.New("sync already in progress")

// Phase は同期実行の状態
type Phase string

const (
	PhaseStart           Phase = "START"
	PhaseRegistryFetched Phase = "REGISTRY_FETCHED"
	PhaseDone            Phase = "DONE"
)

// DocumentStatus は文書ごとの処理結果
type DocumentStatus string

const (
	StatusFetched DocumentStatus = "fetched"
	StatusSkipped DocumentStatus = "skipped"
	StatusFailed  DocumentStatus = "failed"
)

// Stage は文書処理のどの段階で失敗したかを表す
type Stage string

const (
	StageDownload Stage = "download"
	StagePersist  Stage = "persist"
	StageChunk    Stage = "chunk"
	StagePush     Stage = "push"
)

// SyncParams は同期のパラメータ
type SyncParams struct {
	ForceReload    bool // false の場合、保存済みの文書は取得せずにスキップする
	PushEmbeddings bool // false の場合、チャンク化と埋め込み送信を行わない
	Limit          int  // 0以下は無制限。ソート後に適用する
}

// DocumentOutcome は1文書の処理結果
type DocumentOutcome struct {
	BaseID string
	RawID  string
	Title  string
	Status DocumentStatus
	Stage  Stage // Status が failed のときのみ設定
	Chunks int
	Err    error
}

// SyncReport は1回の同期実行の結果
type SyncReport struct {
	RunID    uuid.UUID
	Total    int
	Fetched  int
	Skipped  int
	Failed   int
	Chunks   int
	Outcomes []DocumentOutcome // 登録簿の順序
	Duration time.Duration
}

// FailedOutcomes は失敗した文書の結果だけを返す
func (r *SyncReport) FailedOutcomes() []DocumentOutcome {
	var failed []DocumentOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

func (r *SyncReport) tally() {
	r.Total = len(r.Outcomes)
	r.Fetched, r.Skipped, r.Failed, r.Chunks = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusFetched:
			r.Fetched++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		}
		r.Chunks += o.Chunks
	}
}
