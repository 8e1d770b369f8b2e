// Package llm 定义节点与聊天模型之间的边界：ChatModel 接口、请求/响应类型、
// 统一错误码，以及不依赖网络的 ScriptedModel 和 RuleModel。
//
// 模型总是通过注入传给节点，包内没有全局客户端。OpenAI 兼容的 HTTP 实现
// 位于 llm/openaicompat，按配置选择实现见 llm/factory。
package llm
