package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	coreingestion "github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/platform/config"
)

// RegistrySyncAction は登録簿との同期コマンドのアクション
func RegistrySyncAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := resolveSyncParams(cmd, appCtx.Config.Sync)
	return runSync(ctx, appCtx, params, os.Stdout)
}

// resolveSyncParams はフラグを優先し、未指定の項目は LOAD_MINZDRAV_* の値を使う
func resolveSyncParams(cmd *cli.Command, defaults config.SyncConfig) coreingestion.SyncParams {
	params := syncParamsFromConfig(defaults)
	if cmd.IsSet("limit") {
		params.Limit = int(cmd.Int("limit"))
	}
	if cmd.IsSet("force") {
		params.ForceReload = cmd.Bool("force")
	}
	if cmd.IsSet("push-embeddings") {
		params.PushEmbeddings = cmd.Bool("push-embeddings")
	}
	return params
}

func syncParamsFromConfig(cfg config.SyncConfig) coreingestion.SyncParams {
	return coreingestion.SyncParams{
		ForceReload:    cfg.ForceReload,
		PushEmbeddings: cfg.PushEmbeddings,
		Limit:          cfg.Limit,
	}
}

func runSync(ctx context.Context, appCtx *AppContext, params coreingestion.SyncParams, out io.Writer) error {
	logger := appCtx.Logger()
	logger.Info("登録簿との同期を開始",
		"limit", params.Limit,
		"forceReload", params.ForceReload,
		"pushEmbeddings", params.PushEmbeddings,
	)

	report, err := appCtx.Container.SyncService.Sync(ctx, params)
	if report != nil {
		PrintSyncReport(out, report)
	}
	if err != nil {
		logger.Error("同期に失敗しました", "error", err)
		return fmt.Errorf("同期に失敗: %w", err)
	}
	return nil
}

// PrintSyncReport は同期結果の要約と失敗した文書の一覧を出力する
func PrintSyncReport(w io.Writer, report *coreingestion.SyncReport) {
	fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	fmt.Fprintf(w, "Documents: %d (fetched: %d, skipped: %d, failed: %d)\n",
		report.Total, report.Fetched, report.Skipped, report.Failed)
	fmt.Fprintf(w, "Chunks pushed: %d\n", report.Chunks)
	fmt.Fprintf(w, "Duration: %s\n", report.Duration.Round(time.Millisecond))

	failed := report.FailedOutcomes()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFailed documents:")
	for _, o := range failed {
		fmt.Fprintf(w, "  %s (%s) [%s] %v\n", o.BaseID, o.Title, o.Stage, o.Err)
	}
}
