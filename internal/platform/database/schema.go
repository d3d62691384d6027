package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const createDocumentsSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id_cr          TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	mcb            TEXT,
	age_category   TEXT NOT NULL,
	developer      TEXT,
	placement_date DATE,
	data           BYTEA NOT NULL
)`

const addAgeCategoryCheckSQL = `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint WHERE conname = 'documents_age_category_check'
	) THEN
		ALTER TABLE documents ADD CONSTRAINT documents_age_category_check
			CHECK (age_category IN ('Взрослые', 'Дети', 'Взрослые, дети'));
	END IF;
END
$$`

const createVectorExtensionSQL = `CREATE EXTENSION IF NOT EXISTS vector`

// SchemaOptions はスキーマ作成時のパラメータ
type SchemaOptions struct {
	VectorTable string
	Dimensions  int
}

// EnsureSchema は文書テーブルとベクトルテーブルを存在しなければ作成します
func EnsureSchema(ctx context.Context, db *Database, opts SchemaOptions) error {
	if opts.VectorTable == "" {
		return fmt.Errorf("vector table name is required")
	}
	if opts.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive: %d", opts.Dimensions)
	}

	_, err := Transact(ctx, NewTransactionProvider(db.Pool), func(a *Adapter) (struct{}, error) {
		statements := []string{
			createDocumentsSQL,
			addAgeCategoryCheckSQL,
			createVectorExtensionSQL,
			createVectorTableSQL(opts.VectorTable, opts.Dimensions),
		}
		for _, stmt := range statements {
			if _, err := a.Tx.Exec(ctx, stmt); err != nil {
				return struct{}{}, fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func createVectorTableSQL(table string, dims int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, pgx.Identifier{table}.Sanitize(), dims)
}
