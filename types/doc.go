// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 stategraph 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、tools、llm
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，Coded 接口 + GetErrorCode 沿包装链提取错误码
  - Message / ToolCall：对话消息与模型发起的工具调用
  - ToolSchema / ToolResult：工具定义与执行结果
  - JSONSchema：工具参数的 JSON Schema 子集与构建器
  - TokenCounter / EstimateTokenizer：Token 计数接口与字符估算实现

# Context 传播

WithRunID / WithGraphName / WithNode 在一次图执行中向节点体传递运行元数据。
*/
package types
