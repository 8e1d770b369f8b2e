// Package tokenizer 估算消息与工具 schema 的 Token 数。
// 优先使用 tiktoken 编码，模型未知或编码加载失败时退回 CJK 感知的估算器。
package tokenizer
