// Package persistence 提供运行历史（ExecutionHistory）的持久化后端。
//
// 历史记录是运行结束后写入的审计数据，不保存可恢复的执行状态。
// 后端包括 Redis（按图和状态建立有序集合索引）与 GORM 关系数据库，
// 由 NewHistoryStore 按 config.HistoryConfig.Backend 选择。
package persistence
