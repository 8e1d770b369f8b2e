// Package dsl 提供 YAML 声明式状态图定义：状态字段与合并策略、
// 按名称引用 Catalog 的节点和路由、以及基于条件表达式的分支边，
// 解析后编译为 workflow.CompiledGraph。
package dsl
