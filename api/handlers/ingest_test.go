package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/knowledgeflow/api"
	"github.com/BaSui01/knowledgeflow/rag"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type mockIngestService struct {
	lastReq rag.IngestRequest
	result  *rag.IngestResult
	err     error
}

func (m *mockIngestService) Ingest(_ context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func postJSON(t *testing.T, path, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// =============================================================================
// 🧪 IngestHandler 测试
// =============================================================================

func TestIngestHandler_Success(t *testing.T) {
	service := &mockIngestService{
		result: &rag.IngestResult{
			ChunksCreated: 3,
			ContentLength: 2100,
			DocumentAnalysis: &rag.IngestAnalysis{
				Summary:      "Quarterly financial report",
				DocumentType: "report",
			},
		},
	}
	handler := NewIngestHandler(service, zap.NewNop())

	w := httptest.NewRecorder()
	r := postJSON(t, "/v1/ingest", `{"file_name":"q3.md","folder_id":"finance","raw_text":"Revenue grew."}`)

	handler.HandleIngest(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "q3.md", service.lastReq.FileName)
	assert.Equal(t, "finance", service.lastReq.FolderID)
	assert.Equal(t, "Revenue grew.", service.lastReq.RawText)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out api.IngestResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 3, out.ChunksCreated)
	assert.Equal(t, 2100, out.ContentLength)
	require.NotNil(t, out.DocumentAnalysis)
	assert.Equal(t, "Quarterly financial report", out.DocumentAnalysis.Summary)
}

func TestIngestHandler_ValidationError(t *testing.T) {
	service := &mockIngestService{
		err: &rag.ValidationError{Field: "file_name", Reason: "must not be empty"},
	}
	handler := NewIngestHandler(service, zap.NewNop())

	w := httptest.NewRecorder()
	r := postJSON(t, "/v1/ingest", `{"raw_text":"orphan text"}`)

	handler.HandleIngest(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestIngestHandler_MethodNotAllowed(t *testing.T) {
	handler := NewIngestHandler(&mockIngestService{}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/ingest", nil)

	handler.HandleIngest(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestIngestHandler_WrongContentType(t *testing.T) {
	handler := NewIngestHandler(&mockIngestService{}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader("file_name=q3.md"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	handler.HandleIngest(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
