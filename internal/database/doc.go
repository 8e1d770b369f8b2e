// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，供运行历史的
数据库后端使用。

# 概述

Open 根据 config.DatabaseConfig 选择 postgres、mysql 或 sqlite
（glebarez 纯 Go 驱动）方言，并交给 PoolManager 统一管理连接生命周期。
后台健康检查定时探活，只在健康状态变化时记录日志，Healthy 返回最近一次结果。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Healthy()、Stats()、Close()。
  - PoolConfig：连接池配置，可由 PoolConfigFrom 从数据库配置派生。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 对死锁、序列化失败、锁超时与断连按 RetryBackoff
    指数退避重试。
*/
package database
