// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/server/migrations"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/cards"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/decks"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldtypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldvalues"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notetypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/reviewlogs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Decks(db dbx.DBTX) decks.Repository {
	return decks.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) NoteTypes(db dbx.DBTX) notetypes.Repository {
	return notetypes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) NoteFieldTypes(db dbx.DBTX) notefieldtypes.Repository {
	return notefieldtypes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Notes(db dbx.DBTX) notes.Repository {
	return notes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) NoteFieldValues(db dbx.DBTX) notefieldvalues.Repository {
	return notefieldvalues.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Cards(db dbx.DBTX) cards.Repository {
	return cards.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ReviewLogs(db dbx.DBTX) reviewlogs.Repository {
	return reviewlogs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Documents(db dbx.DBTX) documents.Repository {
	return documents.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// Open connects to PostgreSQL through the pgx stdlib driver and checks the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}
