// Package tools 提供工具注册与执行：Registry 按名称管理工具及其
// JSON Schema、超时和可选的速率限制；Executor 并行执行一批工具调用，
// 结果顺序与调用顺序一致，单个调用失败只体现在对应的 ToolResult 中。
//
// 内置工具：multiply、math_calculator（安全的算术表达式求值）、
// text_analyzer（文本统计）。
package tools
