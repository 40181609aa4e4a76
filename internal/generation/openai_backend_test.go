package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreportgen-server/internal/domain"
)

func newTestBackend(t *testing.T, handler http.Handler) *OpenAIBackend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend, err := NewOpenAIBackend(domain.GenerationConfig{BaseURL: server.URL + "/v1", APIKey: "test"})
	require.NoError(t, err)
	return backend
}

func TestNewOpenAIBackend_RejectsBadURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"empty scheme", "localhost:8080"},
		{"unsupported scheme", "ftp://models.local/v1"},
		{"unparseable", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAIBackend(domain.GenerationConfig{BaseURL: tt.baseURL})
			assert.Error(t, err)
		})
	}
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var received map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","model":"distilgpt2",` +
			`"choices":[{"text":" Patient reports severe leg pain.","index":0,"finish_reason":"stop"}]}`))
	})

	backend := newTestBackend(t, mux)

	text, err := backend.Complete(context.Background(), "distilgpt2", "Patient Summary:", DefaultDecoding("<|endoftext|>"))
	require.NoError(t, err)
	assert.Equal(t, " Patient reports severe leg pain.", text)

	assert.Equal(t, "distilgpt2", received["model"])
	assert.Equal(t, "Patient Summary:", received["prompt"])
	assert.EqualValues(t, 200, received["max_tokens"])
	assert.InDelta(t, 0.8, received["temperature"], 1e-6)
	assert.InDelta(t, 0.9, received["top_p"], 1e-6)
	assert.EqualValues(t, 1, received["n"])
	assert.Equal(t, []interface{}{"<|endoftext|>"}, received["stop"])
	// echo is omitted when false
	assert.NotEqual(t, true, received["echo"])
}

func TestOpenAIBackend_Complete_NoChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","model":"distilgpt2","choices":[]}`))
	})

	backend := newTestBackend(t, mux)

	_, err := backend.Complete(context.Background(), "distilgpt2", "prompt", DefaultDecoding(""))
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIBackend_Complete_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"out of memory","type":"server_error"}}`))
	})

	backend := newTestBackend(t, mux)

	_, err := backend.Complete(context.Background(), "distilgpt2", "prompt", DefaultDecoding(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestOpenAIBackend_CheckModel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/distilgpt2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"distilgpt2","object":"model","owned_by":"local"}`))
	})
	mux.HandleFunc("/v1/models/gpt2-large", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"distilgpt2","object":"model","owned_by":"local"}`))
	})
	mux.HandleFunc("/v1/models/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	})

	backend := newTestBackend(t, mux)
	ctx := context.Background()

	assert.NoError(t, backend.CheckModel(ctx, "distilgpt2"))

	err := backend.CheckModel(ctx, "gpt2-large")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected \"gpt2-large\"")

	err = backend.CheckModel(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/distilgpt2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"distilgpt2","object":"model"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := domain.GenerationConfig{
		Model:               "distilgpt2",
		BaseURL:             server.URL + "/v1",
		VerifyOnStart:       true,
		BreakerFailureRatio: 0.6,
	}

	t.Run("Model_Available", func(t *testing.T) {
		engine, err := Open(context.Background(), cfg, testLogger())
		require.NoError(t, err)
		assert.Equal(t, "distilgpt2", engine.ModelName())
	})

	t.Run("Model_Missing_Is_Fatal", func(t *testing.T) {
		missing := cfg
		missing.Model = "gpt2-xl"

		_, err := Open(context.Background(), missing, testLogger())
		var initErr *domain.InitializationError
		require.ErrorAs(t, err, &initErr)
	})

	t.Run("Bad_URL_Is_Fatal", func(t *testing.T) {
		bad := cfg
		bad.BaseURL = "inference:8000"

		_, err := Open(context.Background(), bad, testLogger())
		var initErr *domain.InitializationError
		require.ErrorAs(t, err, &initErr)
		assert.Equal(t, "generation backend", initErr.Component)
	})
}
