package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/internal/database"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultTableName 迁移版本表
const DefaultTableName = "stategraph_schema_migrations"

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ParseDatabaseType parses a database type string
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo contains information about the current migration state
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator defines the interface for database migrations
type Migrator interface {
	// Up applies all pending migrations
	Up(ctx context.Context) error
	// Down rolls back the last migration
	Down(ctx context.Context) error
	// Goto migrates up or down to version
	Goto(ctx context.Context, version uint) error
	// Force sets the version without running migrations, clearing the dirty flag
	Force(ctx context.Context, version int) error
	// Version returns the current version; 0 means none applied
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// SQLMigrator is the golang-migrate backed Migrator. It owns the connection
// it was built on: Close closes it.
type SQLMigrator struct {
	dbType  DatabaseType
	migrate *migrate.Migrate
	pool    io.Closer
	logger  *zap.Logger
}

// New creates a migrator running the embedded migrations of dbType on db,
// recording versions in tableName (DefaultTableName when empty).
func New(db *sql.DB, dbType DatabaseType, tableName string, logger *zap.Logger) (*SQLMigrator, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tableName == "" {
		tableName = DefaultTableName
	}

	driver, err := databaseDriver(db, dbType, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, path.Join("migrations", string(dbType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(dbType), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger = logger.With(zap.String("component", "migration"), zap.String("database", string(dbType)))
	m.Log = migrateLogger{logger.Sugar()}
	return &SQLMigrator{dbType: dbType, migrate: m, logger: logger}, nil
}

// Open connects with the application database config and creates a migrator.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*SQLMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, err
	}
	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := pool.DB().DB()
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	m, err := New(sqlDB, dbType, "", logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	m.pool = pool
	return m, nil
}

func databaseDriver(db *sql.DB, dbType DatabaseType, table string) (migratedb.Driver, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case DatabaseTypeSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// run executes fn, asking golang-migrate to stop after the current
// migration once ctx is done.
func (m *SQLMigrator) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return ctx.Err()
}

// Up applies all pending migrations
func (m *SQLMigrator) Up(ctx context.Context) error {
	if err := m.run(ctx, m.migrate.Up); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the last migration
func (m *SQLMigrator) Down(ctx context.Context) error {
	if err := m.run(ctx, func() error { return m.migrate.Steps(-1) }); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Goto migrates to a specific version
func (m *SQLMigrator) Goto(ctx context.Context, version uint) error {
	if err := m.run(ctx, func() error { return m.migrate.Migrate(version) }); err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force sets the migration version without running migrations
func (m *SQLMigrator) Force(_ context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version returns the current migration version
func (m *SQLMigrator) Version(_ context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status returns the status of every embedded migration
func (m *SQLMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.dbType)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, len(files))
	for i, f := range files {
		statuses[i] = MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		}
	}
	return statuses, nil
}

// Info returns information about the current migration state
func (m *SQLMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Close closes the migrator and its database connection
func (m *SQLMigrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	var poolErr error
	if m.pool != nil {
		poolErr = m.pool.Close()
	}
	return errors.Join(sourceErr, dbErr, poolErr)
}

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations lists the embedded up migrations of dbType by version.
func availableMigrations(dbType DatabaseType) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, path.Join("migrations", string(dbType)))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		// 000001_create_stategraph_runs.up.sql
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: uint(version), name: strings.TrimSuffix(rest, ".up.sql")})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	s *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.s.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }
