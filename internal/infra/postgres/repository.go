package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/core/ingestion"
)

// ErrDocumentNotFound は指定IDの文書が存在しないことを示す
var ErrDocumentNotFound = errors.New("document not found")

const (
	listDocumentIDsSQL = `SELECT id_cr FROM documents ORDER BY id_cr`

	upsertDocumentSQL = `
INSERT INTO documents (id_cr, title, mcb, age_category, developer, placement_date, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id_cr) DO UPDATE SET
	title = EXCLUDED.title,
	mcb = EXCLUDED.mcb,
	age_category = EXCLUDED.age_category,
	developer = EXCLUDED.developer,
	placement_date = EXCLUDED.placement_date,
	data = EXCLUDED.data`

	getDocumentSQL = `
SELECT id_cr, title, mcb, age_category, developer, placement_date, data
FROM documents
WHERE id_cr = $1`

	countDocumentsSQL = `SELECT count(*) FROM documents`
)

// Repository は ingestion.Repository インターフェースを実装する PostgreSQL リポジトリです
type Repository struct {
	db DBTX
}

// NewRepository は新しい Repository を作成します
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// コンパイル時の型チェック
var _ ingestion.Repository = (*Repository)(nil)

// ListDocumentIDs は保存済みの全ストレージIDを返します
func (r *Repository) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, listDocumentIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan document ids: %w", err)
	}
	return ids, nil
}

// SaveBatch はバッチ内の行を1往復でupsertします
func (r *Repository) SaveBatch(ctx context.Context, batch *ingestion.UploadBatch) (int, error) {
	if batch == nil || batch.Len() == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, row := range batch.Rows {
		b.Queue(upsertDocumentSQL,
			row.ID,
			row.Title,
			OptionToPgtext(row.MCB),
			string(row.AgeCategory),
			OptionToPgtext(row.Developer),
			OptionToPgdate(row.PlacementDate),
			row.Data,
		)
	}

	results := r.db.SendBatch(ctx, b)
	defer results.Close()

	saved := 0
	for _, row := range batch.Rows {
		if _, err := results.Exec(); err != nil {
			return saved, fmt.Errorf("failed to upsert document %s: %w", row.ID, err)
		}
		saved++
	}
	return saved, nil
}

// GetDocument はストレージIDで文書行を取得します
func (r *Repository) GetDocument(ctx context.Context, id string) (*ingestion.DocumentRow, error) {
	var (
		row         ingestion.DocumentRow
		mcb         pgtype.Text
		ageCategory string
		developer   pgtype.Text
		placedAt    pgtype.Date
	)
	err := r.db.QueryRow(ctx, getDocumentSQL, id).Scan(
		&row.ID, &row.Title, &mcb, &ageCategory, &developer, &placedAt, &row.Data,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	row.MCB = PgtextToOption(mcb)
	row.AgeCategory = guideline.AgeCategory(ageCategory)
	row.Developer = PgtextToOption(developer)
	row.PlacementDate = PgdateToOption(placedAt)
	return &row, nil
}

// CountDocuments は保存済みの文書数を返します
func (r *Repository) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, countDocumentsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
