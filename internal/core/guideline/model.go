package guideline

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
)

// AgeCategory は臨床ガイドラインの対象年齢区分を表す
type AgeCategory string

const (
	AgeCategoryAdult          AgeCategory = "Взрослые"
	AgeCategoryPediatric      AgeCategory = "Дети"
	AgeCategoryAdultPediatric AgeCategory = "Взрослые, дети"
)

// DefaultAgeCategory は年齢区分が不明な文書を保存するときの値
const DefaultAgeCategory = AgeCategoryAdult

// ParseAgeCategory は登録簿の表記ゆれを吸収して年齢区分に変換する
func ParseAgeCategory(raw string) mo.Option[AgeCategory] {
	normalized := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	switch normalized {
	case "":
		return mo.None[AgeCategory]()
	case "взрослые":
		return mo.Some(AgeCategoryAdult)
	case "дети":
		return mo.Some(AgeCategoryPediatric)
	case "взрослые, дети", "взрослые,дети", "взрослые и дети", "дети, взрослые":
		return mo.Some(AgeCategoryAdultPediatric)
	}
	return mo.None[AgeCategory]()
}

// Document は登録簿の1行から生成される臨床ガイドラインを表す
type Document struct {
	RawID       string // 登録簿上の複合ID（{base_id}_{version}）
	BaseID      string // 改訂に依存しない業務キー
	Version     int
	Title       string
	MCB         mo.Option[string] // МКБ（疾病分類）コード
	AgeCategory mo.Option[AgeCategory]
	Developer   mo.Option[string]
	PublishDate mo.Option[time.Time]
	SourceURL   string
	Specialties mo.Option[string]
}

// StorageID は関係ストア上のキーを返す（生IDではなく base_id）
func (d *Document) StorageID() string {
	return d.BaseID
}

// AgeCategoryOrDefault は保存用の年齢区分を返す
func (d *Document) AgeCategoryOrDefault() AgeCategory {
	return d.AgeCategory.OrElse(DefaultAgeCategory)
}

// supersedes は d が other より新しい改訂かどうかを判定する。
// (公開日, バージョン) の辞書式比較で、公開日なしは最小値として扱う。
func (d *Document) supersedes(other *Document) bool {
	dDate := d.PublishDate.OrEmpty()
	oDate := other.PublishDate.OrEmpty()
	if !dDate.Equal(oDate) {
		return dDate.After(oDate)
	}
	return d.Version > other.Version
}

// ParseRawID は複合ID "{base_id}_{version}" を分解する。
// 区切りがない、または接尾辞が整数でない場合のバージョンは 1。
func ParseRawID(rawID string) (baseID string, version int) {
	base, suffix, found := strings.Cut(rawID, "_")
	if !found {
		return rawID, 1
	}
	v, err := strconv.Atoi(suffix)
	if err != nil {
		return base, 1
	}
	return base, v
}

// SourceURL は base_id から正規の公開URLを組み立てる
func SourceURL(base, baseID string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + baseID
}
