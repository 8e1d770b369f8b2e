// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行历史表 stategraph_runs 的版本化 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，经 iofs 源驱动交给
golang-migrate 执行。迁移器构建在已打开的 *sql.DB 上，并接管其生命周期。
表结构与 persistence.GormHistoryStore 的 AutoMigrate 结果一致，
两者可以并存。

# 核心类型

  - Migrator：Up/Down/Goto/Force/Version/Status/Info/Close 操作集。
  - SQLMigrator：golang-migrate 实现，New 基于 *sql.DB，Open 基于
    config.DatabaseConfig。
  - CLI：面向终端的格式化输出，供 stategraph migrate 子命令使用。
*/
package migration
