package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/decksync/internal/blobs"
	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PurgeService permanently removes tombstones older than the retention
// window. One pass is one transaction; children always go before parents.
type PurgeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobs.Store
	logger      logging.Logger
	now         func() time.Time
}

func NewPurgeService(db *sql.DB, repomanager repomanager.RepositoryManager, store blobs.Store, logger logging.Logger) *PurgeService {
	return &PurgeService{
		db:          db,
		repomanager: repomanager,
		blobs:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Purge runs one pass. Every stage selects at most BatchSize candidates and
// deletes exactly those, so a pass is bounded on every table.
func (s *PurgeService) Purge(ctx context.Context, opts models.PurgeOptions) (counts *models.PurgeCounts, err error) {
	if opts.RetentionDays < 0 {
		return nil, &ValidationError{Field: "retentionDays", Reason: "must not be negative"}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = common.DefaultPurgeBatchSize
	}

	ctx, span := tracer.Start(ctx, "PurgeService.Purge", trace.WithAttributes(
		attribute.Int("purge.retention_days", opts.RetentionDays),
		attribute.Int("purge.batch_size", opts.BatchSize),
	))
	defer func() { endSpan(span, err) }()

	cutoff := s.now().AddDate(0, 0, -opts.RetentionDays)
	c := &models.PurgeCounts{}
	var staleKeys []string

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		staleKeys, err = s.purge(ctx, tx, cutoff, opts.BatchSize, c)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	if len(staleKeys) > 0 {
		if err := s.blobs.Delete(ctx, staleKeys); err != nil {
			s.logger.Warn(ctx, "purged document blobs not removed", "keys", len(staleKeys), "error", err)
		}
	}

	span.SetAttributes(attribute.Int64("purge.total", c.Total()))
	s.logger.Info(ctx, "purge pass finished", "cutoff", cutoff, "total", c.Total(),
		"review_logs", c.ReviewLogs, "note_field_values", c.NoteFieldValues, "cards", c.Cards,
		"notes", c.Notes, "note_field_types", c.NoteFieldTypes, "note_types", c.NoteTypes,
		"decks", c.Decks, "documents", c.Documents)
	return c, nil
}

func (s *PurgeService) purge(ctx context.Context, tx dbx.DBTX, cutoff time.Time, limit int, c *models.PurgeCounts) ([]string, error) {
	rm := s.repomanager
	cards := rm.Cards(tx)
	logs := rm.ReviewLogs(tx)
	notes := rm.Notes(tx)
	values := rm.NoteFieldValues(tx)
	fieldTypes := rm.NoteFieldTypes(tx)
	noteTypes := rm.NoteTypes(tx)
	decks := rm.Decks(tx)
	docs := rm.Documents(tx)

	add := func(dst *int64) func(int64, error) error {
		return func(n int64, err error) error {
			*dst += n
			return err
		}
	}

	// review logs of purged cards, then logs tombstoned on their own
	cardIDs, err := cards.PurgeCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	if err := add(&c.ReviewLogs)(logs.DeleteByCardIDs(ctx, cardIDs)); err != nil {
		return nil, err
	}
	if err := add(&c.ReviewLogs)(logs.DeleteTombstoned(ctx, cutoff, limit)); err != nil {
		return nil, err
	}

	// notes whose only cards are the ones above
	noteIDs, err := notes.PurgeCandidates(ctx, cutoff, limit, cardIDs)
	if err != nil {
		return nil, err
	}
	if err := add(&c.NoteFieldValues)(values.DeleteByNoteIDs(ctx, noteIDs)); err != nil {
		return nil, err
	}
	if err := add(&c.NoteFieldValues)(values.DeleteTombstoned(ctx, cutoff, limit)); err != nil {
		return nil, err
	}
	if err := add(&c.Cards)(cards.DeleteByIDs(ctx, cardIDs)); err != nil {
		return nil, err
	}
	if err := add(&c.Notes)(notes.DeleteByIDs(ctx, noteIDs)); err != nil {
		return nil, err
	}

	// field types tombstoned on their own, then whole note types
	fieldTypeIDs, err := fieldTypes.PurgeCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	if err := add(&c.NoteFieldTypes)(fieldTypes.DeleteByIDs(ctx, fieldTypeIDs)); err != nil {
		return nil, err
	}
	noteTypeIDs, err := noteTypes.PurgeCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	if err := add(&c.NoteFieldTypes)(fieldTypes.DeleteByNoteTypeIDs(ctx, noteTypeIDs)); err != nil {
		return nil, err
	}
	if err := add(&c.NoteTypes)(noteTypes.DeleteByIDs(ctx, noteTypeIDs)); err != nil {
		return nil, err
	}

	deckIDs, err := decks.PurgeCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	if err := add(&c.Decks)(decks.DeleteByIDs(ctx, deckIDs)); err != nil {
		return nil, err
	}

	purged, err := docs.PurgeCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(purged))
	keys := make([]string, 0, len(purged))
	for _, d := range purged {
		ids = append(ids, d.ID)
		if d.StorageKey != "" {
			keys = append(keys, d.StorageKey)
		}
	}
	if err := add(&c.Documents)(docs.DeleteByIDs(ctx, ids)); err != nil {
		return nil, err
	}

	return keys, nil
}
