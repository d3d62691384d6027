package guideline

import "sort"

// SelectLatest は同じ base_id を持つ行を1件にまとめる。
// グループ内で (公開日, バージョン) が最大のものを採用し（マージではなく後勝ち）、
// 結果は base_id の昇順で返す。
func SelectLatest(docs []*Document) []*Document {
	latest := make(map[string]*Document, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		current, ok := latest[doc.BaseID]
		if !ok || doc.supersedes(current) {
			latest[doc.BaseID] = doc
		}
	}

	selected := make([]*Document, 0, len(latest))
	for _, doc := range latest {
		selected = append(selected, doc)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].BaseID < selected[j].BaseID
	})
	return selected
}
