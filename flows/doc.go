// Package flows 提供基于 workflow 构建的示例状态图：线性文本处理、工具增强、
// 按字数分支、按关键字路由，以及 agent/tool 循环。节点都是可替换的负载，
// 引擎本身不依赖本包。
//
// 每个流程既可以用 Build 以代码方式构建，也可以用 graphs/ 下的 YAML 文档
// 配合 Catalog 通过 workflow/dsl 解析得到，两种方式行为一致。
package flows
