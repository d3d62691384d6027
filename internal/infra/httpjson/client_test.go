package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": body["query"]})
	}))
	defer server.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	err := PostJSON(context.Background(), server.Client(), server.URL, map[string]string{"query": "давление"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "давление", out.Echo)
}

func TestPostJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.Client(), server.URL, struct{}{}, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "model not loaded", statusErr.Body)
	assert.True(t, statusErr.Retryable())
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
}

func TestPostJSON_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var out map[string]any
	err := PostJSON(context.Background(), server.Client(), server.URL, struct{}{}, &out)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStatusError_NotRetryableOnClientError(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusNotFound}
	assert.False(t, err.Retryable())
}
