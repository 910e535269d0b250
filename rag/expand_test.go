package rag

import (
	"context"
	"testing"
)

func TestExpandWithoutClient(t *testing.T) {
	expander := NewExpander(DefaultExpanderConfig(), nil, nil, nil)

	x := expander.Expand(context.Background(), "what is raft")

	if x.Original != "what is raft" {
		t.Errorf("unexpected original: %q", x.Original)
	}
	if len(x.Expanded) != 1 || x.Expanded[0] != "what is raft" {
		t.Errorf("degraded expansion should contain only the original, got %v", x.Expanded)
	}
	if x.Intent != "informational" {
		t.Errorf("expected informational intent, got %s", x.Intent)
	}
}

func TestExpandParsesPayload(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"paraphrases": ["how does raft consensus work", "What is Raft", "raft protocol overview", "extra one"],
		  "hypothetical_answer": "Raft elects a leader that replicates a log.",
		  "sub_queries": ["what is leader election"],
		  "intent": "informational",
		  "entities": ["Raft"]}`,
	}}
	expander := NewExpander(DefaultExpanderConfig(), client, nil, nil)

	x := expander.Expand(context.Background(), "What is Raft")

	// 首位恒为原查询；与原查询大小写等同的复述被丢弃；上限 3
	if x.Expanded[0] != "What is Raft" {
		t.Errorf("first expanded entry must be the original, got %q", x.Expanded[0])
	}
	if len(x.Expanded) != 3 {
		t.Errorf("expected original plus 2 kept paraphrases, got %v", x.Expanded)
	}
	for _, e := range x.Expanded[1:] {
		if e == "What is Raft" {
			t.Errorf("paraphrase equal to the original should be dropped")
		}
	}
	if x.Hypothetical == "" {
		t.Error("expected hypothetical answer")
	}
	if len(x.SubQueries) != 1 || len(x.Entities) != 1 {
		t.Errorf("unexpected sub-queries/entities: %v / %v", x.SubQueries, x.Entities)
	}
}

func TestExpandDegradesOnFailure(t *testing.T) {
	expander := NewExpander(DefaultExpanderConfig(), failingClient{}, nil, nil)

	x := expander.Expand(context.Background(), "anything")

	if len(x.Expanded) != 1 || x.Expanded[0] != "anything" {
		t.Errorf("expected degraded expansion, got %v", x.Expanded)
	}
}

func TestExpandUsesCache(t *testing.T) {
	cache := newFakeCache()
	client := &scriptedClient{replies: []string{
		`{"paraphrases": ["raft overview"], "hypothetical_answer": "", "sub_queries": [], "intent": "informational", "entities": []}`,
	}}
	expander := NewExpander(DefaultExpanderConfig(), client, cache, nil)

	first := expander.Expand(context.Background(), "What is Raft")
	if first.FromCache {
		t.Error("first expansion should not come from cache")
	}
	if cache.writes != 1 {
		t.Errorf("expected 1 cache write, got %d", cache.writes)
	}

	// 归一化后相同的查询命中缓存，不再调用模型
	second := expander.Expand(context.Background(), "  what IS raft ")
	if !second.FromCache {
		t.Error("second expansion should come from cache")
	}
	if client.calls != 1 {
		t.Errorf("expected exactly 1 model call, got %d", client.calls)
	}
	if len(second.Expanded) != len(first.Expanded) {
		t.Errorf("cached expansion differs: %v vs %v", second.Expanded, first.Expanded)
	}
}

func TestProbesIncludeHyDE(t *testing.T) {
	x := Expansion{
		Expanded:     []string{"q", "q2"},
		Hypothetical: "a plausible answer",
	}

	with := x.Probes(true)
	if len(with) != 3 || with[2] != "a plausible answer" {
		t.Errorf("expected hypothetical probe appended, got %v", with)
	}

	without := x.Probes(false)
	if len(without) != 2 {
		t.Errorf("expected hypothetical excluded, got %v", without)
	}
}
