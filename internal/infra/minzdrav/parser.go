package minzdrav

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/xuri/excelize/v2"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
)

// 登録簿エクスポートの列位置
const (
	colRawID = iota
	colTitle
	colMCB
	colAgeCategory
	colDeveloper
	colHasPDF
	colPublishDate
	colSpecialties

	minColumns = colPublishDate + 1
)

// headerID は見出し行の ID 列の値
const headerID = "ID"

var dateLayouts = []string{
	"02.01.2006",
	"02.01.2006 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseRegistry は登録簿のxlsxを読み、有効な行を文書に変換する。
// 版の選択は行わない。
func ParseRegistry(data []byte, sourceURLBase string) ([]*guideline.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("registry workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read registry rows: %w", err)
	}

	// GetRows は末尾の空セルを詰めるため、シート幅に揃える
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	docs := make([]*guideline.Document, 0, len(rows))
	for _, row := range rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		}
		if doc, ok := ParseRow(row, sourceURLBase); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ParseRow は1行を文書に変換する。
// 列不足、IDが空または見出し、PDFなしの行は ok=false を返す。
func ParseRow(row []string, sourceURLBase string) (*guideline.Document, bool) {
	if len(row) < minColumns {
		return nil, false
	}

	rawID := strings.TrimSpace(row[colRawID])
	if rawID == "" || rawID == headerID {
		return nil, false
	}
	if strings.EqualFold(strings.TrimSpace(row[colHasPDF]), "нет") {
		return nil, false
	}

	baseID, version := guideline.ParseRawID(rawID)
	doc := &guideline.Document{
		RawID:       rawID,
		BaseID:      baseID,
		Version:     version,
		Title:       strings.TrimSpace(row[colTitle]),
		MCB:         optionalText(row[colMCB]),
		AgeCategory: guideline.ParseAgeCategory(row[colAgeCategory]),
		Developer:   optionalText(row[colDeveloper]),
		PublishDate: ParseDate(row[colPublishDate]),
		SourceURL:   guideline.SourceURL(sourceURLBase, baseID),
	}
	if len(row) > colSpecialties {
		doc.Specialties = optionalText(row[colSpecialties])
	}
	return doc, true
}

// ParseDate はExcelのシリアル値またはテキストの日付を解釈する
func ParseDate(raw string) mo.Option[time.Time] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mo.None[time.Time]()
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return mo.None[time.Time]()
		}
		return mo.Some(truncateToDate(t))
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return mo.Some(truncateToDate(t))
		}
	}
	return mo.None[time.Time]()
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func optionalText(raw string) mo.Option[string] {
	s := strings.TrimSpace(raw)
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}
