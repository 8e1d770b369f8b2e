// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供状态图编排与执行引擎。

# 概述

workflow 将计算表示为由命名节点组成的有向图：节点读取不可变的状态快照并返回
部分更新，执行器按每个字段声明的合并策略合并更新，再由静态边或路由函数决定
下一个节点，直到到达终止哨兵 Terminal 或耗尽步数预算。图允许环（例如
agent → tools → agent 的工具循环），步数预算保证执行总会停止。

# 核心类型

  - Schema / Field：状态字段声明，合并策略 MergeOverwrite（默认）/ MergeAppend / 自定义 MergeFunc
  - State / Partial：不可变状态快照与节点返回的部分更新
  - NodeRegistry：节点名 → NodeFunc，名称唯一
  - EdgeTable / Edge：StaticEdge | ConditionalEdge（Router + 标签映射）
  - GraphBuilder：两阶段构建：注册 + 一次 Compile，所有配置错误聚合为 GraphConfigurationError
  - CompiledGraph：不可变图，可在并发的独立执行间共享
  - Executor：单线程执行循环，步数预算、协作式取消、事件、指标、追踪、执行历史

# 错误

构建期：GraphConfigurationError（包含 DuplicateNodeError、UnknownNodeError 等）。
运行期：NodeExecutionError、RoutingError、SchemaViolation、StepBudgetExceeded、
CancelledError。均支持 errors.Is 对应哨兵（ErrRouting 等）与 types.GetErrorCode。

# 执行语义

每一步：调用当前节点 → 合并部分更新 → 解析下一目标 → 目标为 Terminal 则结束 →
否则若 step+1 >= 预算则以 StepBudgetExceeded 失败。失败时 ExecutionResult.State
为最后一次提交的状态，失败步骤的更新不会合入。
*/
package workflow
