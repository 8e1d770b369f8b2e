// Package config 提供 stategraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（STATEGRAPH_ 前缀）的顺序叠加，
// 覆盖执行引擎、运行历史存储、Redis、数据库、LLM 协作者、工具、
// 日志、遥测和指标。
package config
