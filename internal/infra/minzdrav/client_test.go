package minzdrav

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/infra/httpjson"
	"github.com/medsupport/guideline-rag/internal/platform/logger"
)

// registryWorkbook は登録簿エクスポートと同じ列構成のxlsxを作る
func registryWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{"ID", "Наименование", "МКБ-10", "Возрастная категория", "Разработчик", "Наличие PDF", "Дата размещения", "Специальности"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		APIURL:     serverURL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, WithLogger(logger.Discard()))
}

func TestClient_FetchDocuments(t *testing.T) {
	workbook := registryWorkbook(t, [][]any{
		{"42_1", "Артериальная гипертензия", "I10", "Взрослые", "РКО", "да", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"42_2", "Артериальная гипертензия", "I10", "Взрослые", "РКО", "да", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"17_1", "Ожирение", "E66", "Дети", "", "да", "15.03.2022", "Эндокринология"},
		{"99_1", "Без PDF", "", "", "", "нет", ""},
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "GetJsonClinrecsFilterV2Excel", r.URL.Query().Get("op"))
		assert.Equal(t, "Mozilla/5.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://apicr.minzdrav.gov.ru", r.Header.Get("Origin"))

		var body map[string]map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{float64(1)}, body["filter"]["status"])

		_, _ = w.Write(workbook)
	}))
	defer server.Close()

	docs, err := newTestClient(server.URL).FetchDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "17", docs[0].BaseID)
	assert.Equal(t, guideline.AgeCategoryPediatric, docs[0].AgeCategory.OrEmpty())
	assert.Equal(t, "Эндокринология", docs[0].Specialties.OrEmpty())

	assert.Equal(t, "42", docs[1].BaseID)
	assert.Equal(t, 2, docs[1].Version)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), docs[1].PublishDate.OrEmpty())
	assert.True(t, docs[1].Specialties.IsAbsent())
}

func TestClient_FetchDocumentsRetriesThenFails(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchDocuments(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_RetrySucceedsAfterTransientFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	data, err := newTestClient(server.URL).Download(context.Background(), &guideline.Document{BaseID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_DownloadNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "GetClinrecPdf", r.URL.Query().Get("op"))
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Download(context.Background(), &guideline.Document{BaseID: "42"})
	require.Error(t, err)
	assert.True(t, httpjson.IsStatus(err, http.StatusNotFound))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_DownloadEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Download(context.Background(), &guideline.Document{BaseID: "42"})
	assert.True(t, errors.Is(err, ErrEmptyContent))
}

func TestClient_CancelledContextStopsRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).Download(ctx, &guideline.Document{BaseID: "42"})
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}
