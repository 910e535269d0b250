package rag

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/knowledgeflow/llm"
	"github.com/BaSui01/knowledgeflow/store"
)

// scriptedClient 按顺序吐出预置回复，用尽后返回错误。
type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) Complete(_ context.Context, _ string) (string, error) {
	c.calls++
	if len(c.replies) == 0 {
		return "", &llm.Error{Code: llm.ErrUpstreamError, Message: "script exhausted"}
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *scriptedClient) Name() string { return "scripted" }

// routedClient 按 prompt 中的标记子串路由到对应回复。
type route struct {
	contains string
	reply    string
}

type routedClient struct {
	routes []route
	calls  int
}

func (c *routedClient) Complete(_ context.Context, prompt string) (string, error) {
	c.calls++
	for _, r := range c.routes {
		if strings.Contains(prompt, r.contains) {
			return r.reply, nil
		}
	}
	return "", &llm.Error{Code: llm.ErrUpstreamError, Message: "no route for prompt"}
}

func (c *routedClient) Name() string { return "routed" }

// failingClient 恒定失败。
type failingClient struct{}

func (failingClient) Complete(_ context.Context, _ string) (string, error) {
	return "", &llm.Error{Code: llm.ErrUpstreamError, Message: "upstream down", Retryable: true}
}

func (failingClient) Name() string { return "failing" }

// fakeStore 内存版 Store，带调用计数与可注入错误。
type fakeStore struct {
	chunks []store.Chunk
	edges  []store.GraphEdge

	contentCalls int
	tagCalls     int
	edgeCalls    int

	expansions []store.QueryExpansionLog
	retrievals []store.RetrievalLog
	evals      []store.SelfEvaluation
	citations  []store.Citation

	failEval error
}

func newFakeStore(chunks ...store.Chunk) *fakeStore {
	return &fakeStore{chunks: chunks}
}

func (f *fakeStore) SaveChunks(_ context.Context, chunks []store.Chunk) error {
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) SaveEdges(_ context.Context, edges []store.GraphEdge) error {
	f.edges = append(f.edges, edges...)
	return nil
}

func (f *fakeStore) ChunksByIDs(_ context.Context, ids []string) ([]store.Chunk, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []store.Chunk
	for _, c := range f.chunks {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ChunksByContent(_ context.Context, folderIDs []string, keywords []string) ([]store.Chunk, error) {
	f.contentCalls++
	var out []store.Chunk
	for _, c := range f.chunks {
		if !inFolders(c, folderIDs) {
			continue
		}
		lowered := strings.ToLower(c.Content)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				out = append(out, c)
				break
			}
		}
	}
	sortChunks(out)
	return out, nil
}

func (f *fakeStore) ChunksByTags(_ context.Context, folderIDs []string, terms []string) ([]store.Chunk, error) {
	f.tagCalls++
	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[t] = true
	}
	var out []store.Chunk
	for _, c := range f.chunks {
		if !inFolders(c, folderIDs) {
			continue
		}
		for _, tag := range c.SemanticTags {
			if termSet[strings.ToLower(tag)] {
				out = append(out, c)
				break
			}
		}
	}
	sortChunks(out)
	return out, nil
}

func (f *fakeStore) EdgesByEntities(_ context.Context, names []string) ([]store.GraphEdge, error) {
	f.edgeCalls++
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[strings.ToLower(n)] = true
	}
	var out []store.GraphEdge
	for _, e := range f.edges {
		if nameSet[strings.ToLower(e.SourceEntity)] || nameSet[strings.ToLower(e.TargetEntity)] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendQueryExpansion(_ context.Context, rec *store.QueryExpansionLog) error {
	f.expansions = append(f.expansions, *rec)
	return nil
}

func (f *fakeStore) AppendRetrievalLog(_ context.Context, rec *store.RetrievalLog) error {
	f.retrievals = append(f.retrievals, *rec)
	return nil
}

func (f *fakeStore) AppendSelfEvaluation(_ context.Context, rec *store.SelfEvaluation) error {
	if f.failEval != nil {
		return f.failEval
	}
	f.evals = append(f.evals, *rec)
	return nil
}

func (f *fakeStore) AppendCitations(_ context.Context, recs []store.Citation) error {
	f.citations = append(f.citations, recs...)
	return nil
}

func inFolders(c store.Chunk, folderIDs []string) bool {
	if len(folderIDs) == 0 {
		return true
	}
	for _, f := range folderIDs {
		if c.FolderID == f {
			return true
		}
	}
	return false
}

func sortChunks(chunks []store.Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
}

// fakeCache 内存版 ExpansionCache。
type fakeCache struct {
	values map[string][]byte
	hits   int
	writes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, v any) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, v)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writes++
	c.values[key] = raw
	return nil
}

// fakeMetrics 计数版 Metrics。
type fakeMetrics struct {
	ingests     int
	retrieves   int
	answers     int
	llmFailures int
}

func (m *fakeMetrics) ObserveIngest(_ int, _ float64)           { m.ingests++ }
func (m *fakeMetrics) ObserveRetrieve(_ int, _ float64)         { m.retrieves++ }
func (m *fakeMetrics) ObserveAnswer(_ string, _ bool, _ float64) { m.answers++ }
func (m *fakeMetrics) IncLLMFailure(_ string)                   { m.llmFailures++ }
