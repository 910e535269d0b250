// Package cache provides a Redis-backed cache used for query expansion
// results and other short-lived pipeline artifacts.
//
// 缓存包提供基于 Redis 的缓存管理器,用于查询扩展结果等短期数据的缓存。
// 当未配置 Redis 地址时,流水线直接跳过缓存层降级运行。
package cache
