package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/cards"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/decks"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldtypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldvalues"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notetypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/reviewlogs"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Decks(db dbx.DBTX) decks.Repository
	NoteTypes(db dbx.DBTX) notetypes.Repository
	NoteFieldTypes(db dbx.DBTX) notefieldtypes.Repository
	Notes(db dbx.DBTX) notes.Repository
	NoteFieldValues(db dbx.DBTX) notefieldvalues.Repository
	Cards(db dbx.DBTX) cards.Repository
	ReviewLogs(db dbx.DBTX) reviewlogs.Repository
	Documents(db dbx.DBTX) documents.Repository
}
