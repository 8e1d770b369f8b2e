// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的状态图执行指标采集能力。

# 概述

Collector 实现 workflow.MetricsRecorder，通过 workflow.WithMetrics
注入执行器。指标使用 promauto 注册，按 namespace 隔离；
NewCollectorWith 允许注册到独立的 Registry（测试或多实例场景）。

# 主要能力

  - 图执行指标：节点调用次数与耗时、路由决策计数、
    运行次数（按 status/reason）、运行耗时与步数分布。
  - 工具与 LLM 指标：调用次数、耗时、Token 用量。
  - HTTP 指标：serve 子命令的请求计数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 数据库指标：运行历史连接池的活跃/空闲连接数。
*/
package metrics
