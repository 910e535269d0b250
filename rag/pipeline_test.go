package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/knowledgeflow/store"
)

func pipelineFixtureStore() *fakeStore {
	return newFakeStore(store.Chunk{
		ID:           "chunk-q3",
		SourceFile:   "report.md",
		Content:      "Revenue grew twelve percent in the third quarter.",
		QualityScore: 0.5,
		FolderID:     "finance",
	})
}

func TestPipelineRetrieveValidatesQuery(t *testing.T) {
	p := NewPipeline(pipelineFixtureStore(), nil, nil, nil, nil)

	_, err := p.Retrieve(context.Background(), "  ", DefaultRetrieveConfig())
	if err == nil || !IsValidation(err) {
		t.Errorf("expected validation error for blank query, got %v", err)
	}
}

func TestPipelineRetrieveDegradedEndToEnd(t *testing.T) {
	// 无模型客户端：扩展退化、重排退回融合序，检索仍然工作
	st := pipelineFixtureStore()
	metrics := &fakeMetrics{}
	p := NewPipeline(st, nil, nil, metrics, nil)

	result, err := p.Retrieve(context.Background(), "revenue third quarter", DefaultRetrieveConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 chunk ref, got %d", len(result.Chunks))
	}
	ref := result.Chunks[0]
	if ref.ChunkID != "chunk-q3" {
		t.Errorf("unexpected chunk: %s", ref.ChunkID)
	}
	if ref.RelevanceScore < DefaultRetrieveConfig().ConfidenceThreshold {
		t.Errorf("returned ref below confidence threshold: %v", ref.RelevanceScore)
	}
	if ref.Strategy != StrategyKeyword {
		t.Errorf("expected keyword provenance, got %s", ref.Strategy)
	}
	if result.QueryExpansion == nil || result.QueryExpansion.Original != "revenue third quarter" {
		t.Errorf("expected expansion summary, got %+v", result.QueryExpansion)
	}
	if result.Metadata.Reranked {
		t.Error("rerank without client must not report applied")
	}
	if metrics.retrieves != 1 {
		t.Errorf("expected 1 retrieve observation, got %d", metrics.retrieves)
	}
	if len(st.retrievals) != 1 || len(st.expansions) != 1 {
		t.Errorf("expected audit logs appended: %d retrievals, %d expansions", len(st.retrievals), len(st.expansions))
	}
}

func TestPipelineRetrieveFiltersByThreshold(t *testing.T) {
	st := pipelineFixtureStore()
	p := NewPipeline(st, nil, nil, nil, nil)

	cfg := DefaultRetrieveConfig()
	cfg.ConfidenceThreshold = 99 // 人为抬高阈值

	result, err := p.Retrieve(context.Background(), "revenue third quarter", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 0 {
		t.Errorf("expected all refs filtered by threshold, got %d", len(result.Chunks))
	}
}

func TestPipelineAnswerShortCircuitsOnNoRetrieve(t *testing.T) {
	st := pipelineFixtureStore()
	client := &routedClient{routes: []route{
		{contains: "requires retrieving documents", reply: `{"decision": "no_retrieve"}`},
		{contains: "careful assistant", reply: "Paris is the capital of France."},
	}}
	p := NewPipeline(st, client, nil, nil, nil)

	result, err := p.Answer(context.Background(), userTurn("what is the capital of France?"), nil, nil, DefaultAnswerToggles())
	if err != nil {
		t.Fatal(err)
	}

	if result.Metadata.RetrievalDecision != "no_retrieve" {
		t.Errorf("expected no_retrieve decision, got %s", result.Metadata.RetrievalDecision)
	}
	if result.Metadata.ChunksUsed != 0 {
		t.Errorf("expected zero chunks used, got %d", result.Metadata.ChunksUsed)
	}
	// 决策为 no_retrieve 时三路检索一次都不能碰 store
	if st.contentCalls != 0 || st.tagCalls != 0 || st.edgeCalls != 0 {
		t.Errorf("retrieval must be skipped entirely: content=%d tag=%d edge=%d",
			st.contentCalls, st.tagCalls, st.edgeCalls)
	}
	if len(st.evals) != 1 || st.evals[0].RetrievalDecision != "no_retrieve" {
		t.Errorf("expected self evaluation logged, got %+v", st.evals)
	}
}

func TestPipelineAnswerFullFlow(t *testing.T) {
	st := pipelineFixtureStore()
	metrics := &fakeMetrics{}
	client := &routedClient{routes: []route{
		{contains: "requires retrieving documents", reply: `{"decision": "retrieve"}`},
		{contains: "rewrite search queries", reply: `{"paraphrases": [], "hypothetical_answer": "", "sub_queries": [], "intent": "informational", "entities": []}`},
		{contains: "Rank the following passages", reply: "[0]"},
		{contains: "Judge each retrieved passage", reply: `{"evaluations": [{"index": 0, "relevant": true, "confidence": 0.9}], "overall_quality": "good"}`},
		{contains: "careful assistant", reply: "Revenue grew twelve percent [Source 1]."},
		{contains: "Compare the answer against the evidence", reply: `{"detected": false, "details": []}`},
	}}
	p := NewPipeline(st, client, nil, metrics, nil)

	result, err := p.Answer(context.Background(), userTurn("how did revenue develop in the third quarter?"), nil, []string{"finance"}, DefaultAnswerToggles())
	if err != nil {
		t.Fatal(err)
	}

	if result.Metadata.RetrievalDecision != "retrieve" {
		t.Errorf("expected retrieve decision, got %s", result.Metadata.RetrievalDecision)
	}
	if result.Metadata.ChunksUsed != 1 {
		t.Errorf("expected 1 chunk used, got %d", result.Metadata.ChunksUsed)
	}
	if result.Metadata.CorrectiveEvaluation != "good" {
		t.Errorf("expected corrective summary, got %q", result.Metadata.CorrectiveEvaluation)
	}
	if result.Metadata.HallucinationDetected {
		t.Error("clean check should not flag hallucination")
	}
	if len(result.Citations) != 1 || result.Citations[0].ChunkID != "chunk-q3" {
		t.Errorf("unexpected citations: %v", result.Citations)
	}
	// 0.5 + 0.1×1 引用 + 0.2×0.5 质量分
	if !almostEqual(result.Confidence, 0.7) {
		t.Errorf("confidence = %v, want 0.7", result.Confidence)
	}

	if len(st.evals) != 1 {
		t.Fatalf("expected 1 self evaluation, got %d", len(st.evals))
	}
	eval := st.evals[0]
	if eval.RetrievalDecision != "retrieve" || !eval.CorrectiveApplied || eval.HallucinationFlag {
		t.Errorf("unexpected evaluation record: %+v", eval)
	}
	if len(st.citations) != 1 {
		t.Errorf("expected citation record persisted, got %d", len(st.citations))
	}
	if metrics.answers != 1 {
		t.Errorf("expected 1 answer observation, got %d", metrics.answers)
	}
}

func TestPipelineAnswerApologizesOnGenerationFailure(t *testing.T) {
	st := pipelineFixtureStore()
	metrics := &fakeMetrics{}
	p := NewPipeline(st, failingClient{}, nil, metrics, nil)

	result, err := p.Answer(context.Background(), userTurn("how did revenue develop?"), nil, nil, DefaultAnswerToggles())
	if err != nil {
		t.Fatal(err)
	}

	if result.Response != apologyResponse {
		t.Errorf("expected apology fallback, got %q", result.Response)
	}
	if len(result.Citations) != 0 || result.Confidence != 0 {
		t.Errorf("apology must carry no citations and zero confidence: %+v", result)
	}
	// 决策失败 fail open 到 retrieve
	if result.Metadata.RetrievalDecision != "retrieve" {
		t.Errorf("expected fail-open retrieve, got %s", result.Metadata.RetrievalDecision)
	}
	if metrics.llmFailures == 0 {
		t.Error("expected generation failure counted")
	}
	if len(st.evals) != 1 {
		t.Errorf("apology path must still log an evaluation, got %d", len(st.evals))
	}
}

func TestPipelineAnswerValidatesMessages(t *testing.T) {
	p := NewPipeline(pipelineFixtureStore(), nil, nil, nil, nil)

	if _, err := p.Answer(context.Background(), nil, nil, nil, DefaultAnswerToggles()); !IsValidation(err) {
		t.Errorf("expected validation error for empty messages, got %v", err)
	}
	systemOnly := []Message{{Role: RoleSystem, Content: "be nice"}}
	if _, err := p.Answer(context.Background(), systemOnly, nil, nil, DefaultAnswerToggles()); !IsValidation(err) {
		t.Errorf("expected validation error without user message, got %v", err)
	}
}

func TestPipelineAnswerFailsOnAuditError(t *testing.T) {
	st := pipelineFixtureStore()
	st.failEval = errors.New("disk full")
	client := &routedClient{routes: []route{
		{contains: "requires retrieving documents", reply: `{"decision": "no_retrieve"}`},
		{contains: "careful assistant", reply: "ok"},
	}}
	p := NewPipeline(st, client, nil, nil, nil)

	_, err := p.Answer(context.Background(), userTurn("q"), nil, nil, DefaultAnswerToggles())
	if err == nil {
		t.Fatal("audit write failure must surface as an error")
	}
}

func TestPipelineAnswerTogglesDisableStages(t *testing.T) {
	st := pipelineFixtureStore()
	client := &routedClient{routes: []route{
		// Self-RAG 关闭后不应有决策调用；留着路由只为防误触发
		{contains: "requires retrieving documents", reply: `{"decision": "no_retrieve"}`},
		{contains: "rewrite search queries", reply: `{"paraphrases": [], "hypothetical_answer": "", "sub_queries": [], "intent": "informational", "entities": []}`},
		{contains: "Rank the following passages", reply: "[0]"},
		{contains: "careful assistant", reply: "Revenue grew [Source 1]."},
	}}
	p := NewPipeline(st, client, nil, nil, nil)

	toggles := AnswerToggles{EnableSelfRAG: false, EnableCorrectiveRAG: false, EnableHallucinationCheck: false}
	result, err := p.Answer(context.Background(), userTurn("how did revenue develop in the third quarter?"), nil, nil, toggles)
	if err != nil {
		t.Fatal(err)
	}

	// Self-RAG 关闭等于固定走 retrieve
	if result.Metadata.RetrievalDecision != "retrieve" {
		t.Errorf("disabled self-rag should always retrieve, got %s", result.Metadata.RetrievalDecision)
	}
	if st.contentCalls == 0 {
		t.Error("retrieval should have run with self-rag disabled")
	}
	if result.Metadata.CorrectiveEvaluation != "" {
		t.Errorf("corrective disabled, got summary %q", result.Metadata.CorrectiveEvaluation)
	}
	if result.Metadata.HallucinationDetected {
		t.Error("hallucination check disabled")
	}
}
