package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把 Migrator 的结果格式化为终端输出
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to output (os.Stdout when nil)
func NewCLI(migrator Migrator, output io.Writer) *CLI {
	if output == nil {
		output = os.Stdout
	}
	return &CLI{migrator: migrator, output: output}
}

// RunUp applies pending migrations and reports how many ran.
func (c *CLI) RunUp(ctx context.Context) error {
	return c.move(ctx, "Running migrations...", "Migrations complete", c.migrator.Up)
}

// RunDown rolls back the last migration.
func (c *CLI) RunDown(ctx context.Context) error {
	return c.move(ctx, "Rolling back last migration...", "Rollback complete", c.migrator.Down)
}

// RunGoto migrates to version.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.move(ctx, fmt.Sprintf("Migrating to version %d...", version), "Migration complete",
		func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// move runs step and prints the version before and after it.
func (c *CLI) move(ctx context.Context, start, done string, step func(context.Context) error) error {
	fmt.Fprintln(c.output, start)
	before, _, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if err := step(ctx); err != nil {
		return err
	}
	after, _, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if before == after {
		fmt.Fprintf(c.output, "%s. No change, current version: %d\n", done, after)
		return nil
	}
	fmt.Fprintf(c.output, "%s. Current version: %d (was %d)\n", done, after, before)
	return nil
}

// RunForce 强制设置版本号并清除 dirty 标记
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Version forced to %d\n", version)
	return nil
}

// RunVersion prints the current version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", version)
	}
	return nil
}

// RunStatus prints one row per embedded migration followed by a summary.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	applied := 0
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "Pending"
		switch {
		case s.Dirty:
			state = "Dirty"
		case s.Applied:
			state = "Applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n", len(statuses), applied, len(statuses)-applied)
	return nil
}

// RunInfo prints the migration summary.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Migration Information:")
	fmt.Fprintf(w, "  Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "  Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "  Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(w, "  Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(w, "  Pending Migrations:\t%d\n", info.PendingMigrations)
	return w.Flush()
}
