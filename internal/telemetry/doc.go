// Package telemetry 负责 OpenTelemetry 的启动与关闭：Init 按 TelemetryConfig
// 构建 OTLP gRPC 导出的 TracerProvider 与 MeterProvider 并注册为全局实现，
// Recorder 把图执行的节点、路由与运行度量写入 OTel Meter，Tee 将同一度量
// 同时交给 Prometheus Collector。
//
// 禁用时 Init 不修改全局状态，Providers 的 Tracer/Meter 退回 otel 全局实现。
package telemetry
