// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 serve 子命令的 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动，Run 阻塞到
context 结束或服务异常后优雅关闭，Shutdown 在配置的超时内排空
请求并且可重复调用。信号处理由调用方通过 context 完成。
*/
package server
