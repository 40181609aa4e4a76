package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreportgen-server/internal/domain"
	"github.com/medreportgen-server/internal/metrics"
	"github.com/medreportgen-server/internal/service"
)

type stubConfigManager struct {
	cfg *domain.Config
}

func (m *stubConfigManager) GetConfig() *domain.Config                     { return m.cfg }
func (m *stubConfigManager) GetServerConfig() *domain.ServerConfig         { return &m.cfg.Server }
func (m *stubConfigManager) GetGenerationConfig() *domain.GenerationConfig { return &m.cfg.Generation }
func (m *stubConfigManager) Reload() error                                 { return nil }
func (m *stubConfigManager) Validate() error                               { return nil }
func (m *stubConfigManager) IsProduction() bool                            { return false }
func (m *stubConfigManager) IsDevelopment() bool                           { return true }

// stubGenerator echoes the prompt it received so tests can inspect it.
type stubGenerator struct {
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (domain.GeneratedNote, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return domain.GeneratedNote{}, domain.NewGenerationError("distilgpt2", g.err)
	}
	return domain.GeneratedNote{Raw: " Patient is stable.", Text: "Patient is stable."}, nil
}

func (g *stubGenerator) ModelName() string { return "distilgpt2" }

func (g *stubGenerator) BreakerState() gobreaker.State { return gobreaker.StateClosed }

func newTestServer(t *testing.T, generator *stubGenerator) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := &domain.Config{
		Server:  domain.ServerConfig{Host: "127.0.0.1", Port: 8000, CORSAllowedOrigins: []string{"*"}},
		Logging: domain.LoggingConfig{Level: "info"},
		Metrics: domain.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	collector := metrics.NewCollector()
	assembler := service.NewReportAssembler(generator, domain.DefaultConfidenceScore, 0, logger).WithObserver(collector)

	server := NewServer(&stubConfigManager{cfg: cfg}, assembler, generator, collector, logger)
	gin.SetMode(gin.TestMode)
	return server
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

const validBody = `{
	"pain_intensity": 8,
	"hemoglobin": 8.0,
	"oxygen_saturation": 95,
	"pain_type": "Legs",
	"facility_type": "ER",
	"location": "Bronx",
	"admitted": "No"
}`

func TestServer_Root(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})

	w := doRequest(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "MedReportGen AI Backend (Sickle Cell) is running. POST /generate"}`, w.Body.String())
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})

	w := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","model_loaded":true,"model":"distilgpt2","breaker":"closed"}`, w.Body.String())
}

func TestServer_Generate(t *testing.T) {
	generator := &stubGenerator{}
	s := newTestServer(t, generator)

	w := doRequest(s, http.MethodPost, "/generate", validBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"generated_note": "Patient is stable.",
		"confidence_score": 0.78,
		"warnings": ["High pain intensity reported."]
	}`, w.Body.String())

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "Age: 30\nGender: Male\n")
	assert.Contains(t, generator.prompts[0], "Hemoglobin (g/dL): 8.0\n")
	assert.Contains(t, generator.prompts[0], "Oxygen Saturation (%): 95.0\n")
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestServer_Generate_GenerationFailureStillSucceeds(t *testing.T) {
	s := newTestServer(t, &stubGenerator{err: errors.New("model server unreachable")})

	body := strings.Replace(validBody, `"admitted": "No"`, `"admitted": "YES"`, 1)
	w := doRequest(s, http.MethodPost, "/generate", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Error generating note: model server unreachable", resp["generated_note"])
	assert.Equal(t, 0.78, resp["confidence_score"])
	assert.Equal(t, []interface{}{domain.WarningHighPain, domain.WarningPatientAdmitted}, resp["warnings"])

	m := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Contains(t, m.Body.String(), `medreportgen_notes_generated_total{outcome="degraded"} 1`)
}

func TestServer_Generate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{
			name:   "missing fields",
			body:   `{"pain_intensity": 8, "oxygen_saturation": 95, "pain_type": "Legs", "facility_type": "ER", "location": "Bronx"}`,
			fields: []string{"hemoglobin", "admitted"},
		},
		{
			name:   "null required field",
			body:   strings.Replace(validBody, `"location": "Bronx"`, `"location": null`, 1),
			fields: []string{"location"},
		},
		{
			name:   "wrong type",
			body:   strings.Replace(validBody, `"pain_intensity": 8`, `"pain_intensity": "high"`, 1),
			fields: []string{"pain_intensity"},
		},
		{
			name:   "fractional integer",
			body:   strings.Replace(validBody, `"pain_intensity": 8`, `"pain_intensity": 7.5`, 1),
			fields: []string{"pain_intensity"},
		},
		{
			name: "every field error reported",
			body: strings.Replace(strings.Replace(validBody, `"pain_intensity": 8`, `"pain_intensity": null`, 1),
				`"hemoglobin": 8.0`, `"hemoglobin": "7"`, 1),
			fields: []string{"pain_intensity", "hemoglobin"},
		},
		{
			name:   "mistyped and missing",
			body:   `{"pain_intensity": "high", "hemoglobin": 8.0, "oxygen_saturation": 95, "pain_type": "Legs", "facility_type": "ER", "location": "Bronx"}`,
			fields: []string{"pain_intensity", "admitted"},
		},
		{
			name:   "not an object",
			body:   `[1, 2]`,
			fields: []string{"body"},
		},
		{
			name:   "malformed json",
			body:   `{"pain_intensity": 8,`,
			fields: []string{"body"},
		},
		{
			name:   "empty object",
			body:   `{}`,
			fields: []string{"pain_intensity", "hemoglobin", "oxygen_saturation", "pain_type", "facility_type", "location", "admitted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := &stubGenerator{}
			s := newTestServer(t, generator)

			w := doRequest(s, http.MethodPost, "/generate", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var resp struct {
				Detail []domain.ValidationError `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			fields := make([]string, 0, len(resp.Detail))
			for _, d := range resp.Detail {
				fields = append(fields, d.Field)
				assert.NotEmpty(t, d.Message)
			}
			assert.ElementsMatch(t, tt.fields, fields)
			assert.Empty(t, generator.prompts, "invalid input must not reach the generator")
		})
	}
}

func TestServer_Generate_EmptyBody(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestServer_Generate_ExplicitOptionals(t *testing.T) {
	generator := &stubGenerator{}
	s := newTestServer(t, generator)

	body := strings.Replace(validBody, `"admitted": "No"`, `"admitted": "No", "age": 17, "gender": "Female"`, 1)
	w := doRequest(s, http.MethodPost, "/generate", body)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "Age: 17\nGender: Female\n")
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})

	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_PanicRecovery(t *testing.T) {
	s := newTestServer(t, &stubGenerator{})
	s.Router().GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(s, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrInternalServer, apiErr.Code)
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), apiErr.RequestID)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestServer_Generate_WholeNumberInteger(t *testing.T) {
	generator := &stubGenerator{}
	s := newTestServer(t, generator)

	body := strings.Replace(validBody, `"pain_intensity": 8`, `"pain_intensity": 8.0`, 1)
	w := doRequest(s, http.MethodPost, "/generate", body)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "Pain Intensity (1-10): 8\n")
}
