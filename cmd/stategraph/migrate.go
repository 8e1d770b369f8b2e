package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/stategraph/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

type migrateOptions struct {
	dbType string
	dbName string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run history database schema",
		Long: `Apply or roll back the versioned schema of the stategraph_runs table.

The connection comes from the database section of the config file.

Examples:
  stategraph migrate up
  stategraph migrate up --config /etc/stategraph/config.yaml
  stategraph migrate status
  stategraph migrate goto 1
  stategraph migrate force 0`,
	}
	cmd.PersistentFlags().StringVar(&opts.dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&opts.dbName, "db-name", "", "Database name, or file path for sqlite (default: from config)")

	// sub 包装一个无参数的迁移子命令，fn 为 (*migration.CLI) 的方法表达式
	sub := func(use, short string, fn func(*migration.CLI, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return withMigrator(c, root, opts, fn)
			},
		}
	}
	cmd.AddCommand(
		sub("up", "Apply all pending migrations", (*migration.CLI).RunUp),
		sub("down", "Roll back the last migration", (*migration.CLI).RunDown),
		sub("status", "Show migration status", (*migration.CLI).RunStatus),
		sub("version", "Show current migration version", (*migration.CLI).RunVersion),
		sub("info", "Show migration summary", (*migration.CLI).RunInfo),
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(c, root, opts, func(cli *migration.CLI, ctx context.Context) error {
					return cli.RunGoto(ctx, uint(version))
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force set the migration version (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(c, root, opts, func(cli *migration.CLI, ctx context.Context) error {
					return cli.RunForce(ctx, version)
				})
			},
		},
	)
	return cmd
}

// withMigrator opens a migrator from the loaded config and runs fn against it.
func withMigrator(cmd *cobra.Command, root *rootOptions, opts *migrateOptions, fn func(*migration.CLI, context.Context) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if opts.dbType != "" {
		cfg.Database.Driver = opts.dbType
	}
	if opts.dbName != "" {
		cfg.Database.Name = opts.dbName
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	m, err := migration.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return fn(migration.NewCLI(m, cmd.OutOrStdout()), cmd.Context())
}
