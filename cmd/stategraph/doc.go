// =============================================================================
// stategraph 命令行入口
// =============================================================================
// 运行、导出和托管内置的示例状态图。
//
// 使用方法:
//
//	stategraph run basic --input "hello world"      # 运行一次
//	stategraph run agent --input "What is 15 times 8?"
//	stategraph run conditional --input a --input "b c" # 批量运行
//	stategraph run basic --graph graph.yaml --input x # 运行 YAML 文档
//	stategraph export agent --format mermaid          # 导出图结构
//	stategraph serve --config stategraph.yaml         # 启动 HTTP 服务
//	stategraph version                                # 显示版本信息
// =============================================================================
package main
