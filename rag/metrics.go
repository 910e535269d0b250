package rag

// Metrics 是管道向监控层暴露的窄接口，由 internal/metrics 的
// prometheus 收集器实现。所有调用点都允许 nil。
type Metrics interface {
	ObserveIngest(chunks int, seconds float64)
	ObserveRetrieve(results int, seconds float64)
	ObserveAnswer(decision string, hallucination bool, seconds float64)
	IncLLMFailure(stage string)
}
