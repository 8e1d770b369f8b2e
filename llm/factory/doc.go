// Package factory 按配置创建 ChatModel，避免 llm 包与具体实现之间的循环依赖。
package factory
