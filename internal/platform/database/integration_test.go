//go:build integration

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/infra/postgres"
	"github.com/medsupport/guideline-rag/internal/platform/logger"
)

const testDimensions = 3

// startPostgres は pgvector 入りの PostgreSQL コンテナを起動し、スキーマを作成する
func startPostgres(t *testing.T) *Database {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=clinical_recommendations",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	_ = resource.Expire(300)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var port int
	_, err = fmt.Sscanf(resource.GetPort("5432/tcp"), "%d", &port)
	require.NoError(t, err)

	params := ConnectionParams{
		Host:     "localhost",
		Port:     port,
		User:     "postgres",
		Password: "secret",
		DBName:   "clinical_recommendations",
		SSLMode:  "disable",
	}

	var db *Database
	require.NoError(t, pool.Retry(func() error {
		d, err := New(context.Background(), params)
		if err != nil {
			return err
		}
		db = d
		return nil
	}))
	t.Cleanup(db.Close)

	require.NoError(t, EnsureSchema(context.Background(), db, SchemaOptions{
		VectorTable: postgres.DefaultVectorTable,
		Dimensions:  testDimensions,
	}))
	return db
}

func TestIntegration_Postgres(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	t.Run("schema is idempotent", func(t *testing.T) {
		require.NoError(t, EnsureSchema(ctx, db, SchemaOptions{
			VectorTable: postgres.DefaultVectorTable,
			Dimensions:  testDimensions,
		}))
	})

	t.Run("document store upserts by id", func(t *testing.T) {
		store := NewDocumentStore(db)

		batch := ingestion.NewUploadBatch("run-1")
		batch.Add(ingestion.DocumentRow{
			ID:            "42",
			Title:         "Артериальная гипертензия",
			MCB:           mo.Some("I10"),
			AgeCategory:   guideline.AgeCategoryAdult,
			PlacementDate: mo.Some(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
			Data:          []byte("%PDF-old"),
		})
		batch.Add(ingestion.DocumentRow{ID: "17", Title: "Ожирение", AgeCategory: guideline.AgeCategoryPediatric, Data: []byte("%PDF")})

		saved, err := store.SaveBatch(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, saved)

		update := ingestion.NewUploadBatch("run-2")
		update.Add(ingestion.DocumentRow{ID: "42", Title: "Артериальная гипертензия у взрослых", AgeCategory: guideline.AgeCategoryAdult, Data: []byte("%PDF-new")})
		_, err = store.SaveBatch(ctx, update)
		require.NoError(t, err)

		ids, err := store.ListDocumentIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"17", "42"}, ids)

		row, err := store.GetDocument(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "Артериальная гипертензия у взрослых", row.Title)
		assert.Equal(t, "%PDF-new", string(row.Data))
		assert.True(t, row.MCB.IsAbsent())
		assert.True(t, row.PlacementDate.IsAbsent())

		_, err = store.GetDocument(ctx, "missing")
		assert.ErrorIs(t, err, postgres.ErrDocumentNotFound)
	})

	t.Run("invalid age category rolls back the batch", func(t *testing.T) {
		store := NewDocumentStore(db)
		before, err := store.CountDocuments(ctx)
		require.NoError(t, err)

		batch := ingestion.NewUploadBatch("run-3")
		batch.Add(ingestion.DocumentRow{ID: "100", Title: "ok", AgeCategory: guideline.AgeCategoryAdult, Data: []byte("x")})
		batch.Add(ingestion.DocumentRow{ID: "101", Title: "bad", AgeCategory: "Пожилые", Data: []byte("x")})

		_, err = store.SaveBatch(ctx, batch)
		require.Error(t, err)

		after, err := store.CountDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("similarity search orders by cosine distance", func(t *testing.T) {
		insert := func(id, content string, vec []float32, meta guideline.ChunkMetadata) {
			raw, err := json.Marshal(meta)
			require.NoError(t, err)
			_, err = db.Pool.Exec(ctx,
				`INSERT INTO chunk_embeddings (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)`,
				id, content, raw, pgvector.NewVector(vec))
			require.NoError(t, err)
		}
		insert("42-p1-c0", "near", []float32{1, 0, 0}, guideline.ChunkMetadata{DocumentName: "A", RecommendationNumber: "42-p1"})
		insert("42-p2-c0", "middle", []float32{1, 1, 0}, guideline.ChunkMetadata{DocumentName: "A", RecommendationNumber: "42-p2"})
		insert("17-p1-c0", "far", []float32{0, 0, 1}, guideline.ChunkMetadata{DocumentName: "B", RecommendationNumber: "17-p1"})

		repo := postgres.NewSearchRepository(db.Pool, "")
		results, err := repo.SearchSimilar(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Content)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, "42-p1", results[0].Metadata.RecommendationNumber)
		assert.Equal(t, "middle", results[1].Content)
	})

	t.Run("advisory lock is exclusive across sessions", func(t *testing.T) {
		locker := NewAdvisoryLocker(db.Pool, logger.Discard())

		release, acquired, err := locker.TryAcquire(ctx, "guideline-rag:test")
		require.NoError(t, err)
		require.True(t, acquired)

		_, again, err := locker.TryAcquire(ctx, "guideline-rag:test")
		require.NoError(t, err)
		assert.False(t, again)

		release()

		release2, acquired, err := locker.TryAcquire(ctx, "guideline-rag:test")
		require.NoError(t, err)
		assert.True(t, acquired)
		release2()
	})
}
