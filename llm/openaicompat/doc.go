// Package openaicompat 实现 OpenAI 兼容的 /chat/completions 客户端，
// 支持工具调用，适用于 OpenAI 以及提供兼容接口的其他服务。
package openaicompat
