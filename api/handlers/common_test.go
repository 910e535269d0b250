package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/llm"
	"github.com/BaSui01/knowledgeflow/rag"
)

// =============================================================================
// 🧪 错误映射测试
// =============================================================================

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "validation error maps to 400",
			err:            &rag.ValidationError{Field: "query", Reason: "must not be empty"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name:           "provider unavailable maps to 503",
			err:            &llm.Error{Code: llm.ErrProviderUnavailable, Message: "no provider"},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   string(llm.ErrProviderUnavailable),
		},
		{
			name:           "upstream error maps to 502",
			err:            &llm.Error{Code: llm.ErrUpstreamError, Message: "bad gateway", Retryable: true},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   string(llm.ErrUpstreamError),
		},
		{
			name:           "upstream timeout maps to 504",
			err:            &llm.Error{Code: llm.ErrUpstreamTimeout, Message: "deadline"},
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   string(llm.ErrUpstreamTimeout),
		},
		{
			name:           "rate limited maps to 429",
			err:            &llm.Error{Code: llm.ErrRateLimited, Message: "slow down"},
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   string(llm.ErrRateLimited),
		},
		{
			name:           "llm error keeps explicit http status",
			err:            &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", HTTPStatus: http.StatusUnauthorized},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   string(llm.ErrUnauthorized),
		},
		{
			name:           "unknown error maps to 500",
			err:            errors.New("disk on fire"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteServiceError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]int{"count": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}

// =============================================================================
// 🧪 请求验证测试
// =============================================================================

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"bogus_field": 1}`))

	var dst struct {
		FileName string `json:"file_name"`
	}
	err := DecodeJSONBody(w, r, &dst)
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/ingest", nil)
	r.Header.Set("Content-Type", "text/plain")

	ok := ValidateContentType(w, r)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = httptest.NewRecorder()
	r.Header.Set("Content-Type", "application/json")
	assert.True(t, ValidateContentType(w, r))
}

// =============================================================================
// 🧪 指标中间件测试
// =============================================================================

type recordedRequest struct {
	method string
	path   string
	status int
}

type mockHTTPRecorder struct {
	requests []recordedRequest
}

func (m *mockHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method: method, path: path, status: status})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &mockHTTPRecorder{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	handler := MetricsMiddleware(rec, next)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/ingest", nil)
	handler.ServeHTTP(w, r)

	require.Len(t, rec.requests, 1)
	assert.Equal(t, http.MethodPost, rec.requests[0].method)
	assert.Equal(t, "/v1/ingest", rec.requests[0].path)
	assert.Equal(t, http.StatusCreated, rec.requests[0].status)
}

func TestMetricsMiddlewareNilRecorder(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := MetricsMiddleware(nil, next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
