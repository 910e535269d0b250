// Package rag implements the retrieval-augmented-generation core:
//
//   - 文档入库管道：分块（Chunker）→ 语义增强（Enricher）→ 实体抽取
//     （EntityExtractor）→ 共现图构建（GraphBuilder），产物写入 store。
//   - 查询时检索管道：查询扩展（Expander，含 HyDE）→ 三路混合检索
//     （HybridRetriever：keyword/tag/graph 并发执行后加权融合）→
//     重排（Reranker）→ 可选多跳补充检索（MultiHop）。
//   - 回答控制环：检索必要性决策（SelfRAG）→ 证据过滤（Corrective）→
//     带引用生成（Generator）→ 幻觉核查（HallucinationChecker），
//     由 Pipeline 按状态机顺序编排。
//
// 每个依赖外部模型的阶段都是 fail-soft 的：模型不可用或输出不可解析时
// 退回该阶段文档化的默认值，绝不中断管道。
package rag
