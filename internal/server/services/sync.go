package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/decksync/internal/blobs"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SyncService reconciles client batches with the server store (push) and
// returns everything changed above a client watermark (pull).
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobs.Store
	cascade     *CascadeService
	logger      logging.Logger
	now         func() time.Time
}

func NewSyncService(db *sql.DB, repomanager repomanager.RepositoryManager, store blobs.Store,
	cascade *CascadeService, logger logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: repomanager,
		blobs:       store,
		cascade:     cascade,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// recordStore is the part of an entity repository that push drives.
type recordStore[R models.Record] interface {
	LockParents(ctx context.Context, userID string, rec R) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, rec R) (bool, error)
	Update(ctx context.Context, rec R) error
}

// pushRun is the state of one push call.
type pushRun struct {
	userID string
	now    time.Time
	result *models.PushResult

	// tombstones pushed in this batch, cascaded once every list is written
	deadDecks []string
	deadNotes []string
	deadTypes []string

	// blobs replaced by a newer document write, removed after commit
	staleKeys []string
}

func (p *pushRun) ack(kind models.EntityType, id string, version int64) {
	p.result.Acks[kind] = append(p.result.Acks[kind], models.Ack{ID: id, SyncVersion: version})
}

// conflict reports id as rejected. A row the caller can see is acknowledged
// with the server's version.
func (p *pushRun) conflict(kind models.EntityType, id string, state *models.RowState) {
	if state != nil {
		p.ack(kind, id, state.SyncVersion)
	}
	p.result.Conflicts[kind] = append(p.result.Conflicts[kind], id)
}

// recordHooks customize pushRecords per entity type. allow can veto a write
// the resolver accepted; the record is then reported as a conflict. prepare
// runs before a row is written, written after it was inserted or applied.
type recordHooks[R models.Record] struct {
	allow   func(ctx context.Context, rec R) (bool, error)
	prepare func(ctx context.Context, rec R, d Decision) error
	written func(ctx context.Context, rec R) error
}

func (h recordHooks[R]) write(ctx context.Context, rec R, d Decision, store func() error) error {
	if h.prepare != nil {
		if err := h.prepare(ctx, rec, d); err != nil {
			return err
		}
	}
	return store()
}

// pushRecords writes one entity list. The parents of each record are locked
// and must belong to the caller; a live record under a dead parent is stored
// as a tombstone of the same instant. Then the row itself is locked and the
// resolver decides what happens. An insert that loses a race with a
// concurrent push re-reads the row once.
func pushRecords[R models.Record](ctx context.Context, s *SyncService, p *pushRun, kind models.EntityType,
	store recordStore[R], recs []R, hooks recordHooks[R]) error {
	for _, rec := range recs {
		env := rec.Env()

		parents, err := store.LockParents(ctx, p.userID, rec)
		if err != nil {
			return err
		}
		if !parents.Owned {
			s.logger.Debug(ctx, "push skipped, parent not owned", "kind", kind, "id", env.ID)
			continue
		}
		if parents.DeletedAt != nil && !env.Deleted() {
			at := *parents.DeletedAt
			env.DeletedAt = &at
			s.logger.Debug(ctx, "push tombstoned, parent deleted", "kind", kind, "id", env.ID)
		}

	resolve:
		for attempt := 0; ; attempt++ {
			state, err := store.LockState(ctx, p.userID, env.ID)
			if err != nil {
				return err
			}

			d := Resolve(kind, env.UpdatedAt, state)
			if d == DecisionApply || d == DecisionInsert {
				if hooks.allow != nil {
					ok, err := hooks.allow(ctx, rec)
					if err != nil {
						return err
					}
					if !ok {
						s.logger.Debug(ctx, "push conflict, write refused", "kind", kind, "id", env.ID)
						p.conflict(kind, env.ID, state)
						break resolve
					}
				}
			}

			switch d {
			case DecisionSkip:
				s.logger.Debug(ctx, "push skipped, row not owned", "kind", kind, "id", env.ID)

			case DecisionConflict:
				s.logger.Debug(ctx, "push conflict, server wins", "kind", kind, "id", env.ID,
					"client_updated_at", env.UpdatedAt, "server_updated_at", state.UpdatedAt)
				p.conflict(kind, env.ID, state)

			case DecisionReplay:
				p.ack(kind, env.ID, state.SyncVersion)

			case DecisionApply:
				env.SyncVersion = NextVersion(state.SyncVersion)
				if err := hooks.write(ctx, rec, d, func() error { return store.Update(ctx, rec) }); err != nil {
					return err
				}
				p.ack(kind, env.ID, env.SyncVersion)
				if hooks.written != nil {
					if err := hooks.written(ctx, rec); err != nil {
						return err
					}
				}

			case DecisionInsert:
				env.SyncVersion = NextVersion(0)
				if env.CreatedAt.IsZero() || env.CreatedAt.After(env.UpdatedAt) {
					env.CreatedAt = env.UpdatedAt
				}
				var inserted bool
				if err := hooks.write(ctx, rec, d, func() (err error) {
					inserted, err = store.Insert(ctx, rec)
					return err
				}); err != nil {
					return err
				}
				if !inserted {
					if attempt == 0 {
						continue resolve
					}
					// the row is still invisible: another unique key holds it back
					s.logger.Debug(ctx, "push conflict, insert lost twice", "kind", kind, "id", env.ID)
					p.conflict(kind, env.ID, nil)
					break resolve
				}
				p.ack(kind, env.ID, env.SyncVersion)
				if hooks.written != nil {
					if err := hooks.written(ctx, rec); err != nil {
						return err
					}
				}
			}
			break
		}
	}
	return nil
}

// Push applies a client batch in one transaction. Lists are written parents
// first so records may reference rows pushed earlier in the same batch.
func (s *SyncService) Push(ctx context.Context, userID string, batch *models.PushBatch) (result *models.PushResult, err error) {
	ctx, span := tracer.Start(ctx, "SyncService.Push", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	if err := ValidateBatch(batch); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("batch.size", batch.Len()))

	ownedBy := func(owner *string) {
		if *owner == "" {
			*owner = userID
		}
	}
	for _, d := range batch.Decks {
		ownedBy(&d.UserID)
	}
	for _, nt := range batch.NoteTypes {
		ownedBy(&nt.UserID)
	}
	for _, doc := range batch.Documents {
		ownedBy(&doc.UserID)
	}

	p := &pushRun{userID: userID, now: s.now(), result: models.NewPushResult()}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.push(ctx, tx, p, batch)
	})
	if err != nil {
		return nil, storageError(err)
	}

	if len(p.staleKeys) > 0 {
		if err := s.blobs.Delete(ctx, p.staleKeys); err != nil {
			s.logger.Warn(ctx, "replaced document blobs not removed", "keys", len(p.staleKeys), "error", err)
		}
	}

	s.logger.Info(ctx, "push applied", "user_id", userID, "records", batch.Len(),
		"conflicts", countIDs(p.result.Conflicts), "upload_tasks", len(p.result.UploadTasks))
	return p.result, nil
}

func (s *SyncService) push(ctx context.Context, tx dbx.DBTX, p *pushRun, b *models.PushBatch) error {
	rm := s.repomanager

	if err := pushRecords(ctx, s, p, models.EntityDeck, rm.Decks(tx), b.Decks, recordHooks[*models.Deck]{
		written: func(_ context.Context, d *models.Deck) error {
			if d.Deleted() {
				p.deadDecks = append(p.deadDecks, d.ID)
			}
			return nil
		},
	}); err != nil {
		return err
	}

	// Note type tombstones wait until the batch's notes are written: a type
	// is only deleted once none of its notes are live.
	var liveTypes, deadTypes []*models.NoteType
	for _, nt := range b.NoteTypes {
		if nt.Deleted() {
			deadTypes = append(deadTypes, nt)
		} else {
			liveTypes = append(liveTypes, nt)
		}
	}
	markDeadType := func(_ context.Context, nt *models.NoteType) error {
		if nt.Deleted() {
			p.deadTypes = append(p.deadTypes, nt.ID)
		}
		return nil
	}

	if err := pushRecords(ctx, s, p, models.EntityNoteType, rm.NoteTypes(tx), liveTypes, recordHooks[*models.NoteType]{
		written: markDeadType,
	}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityNoteFieldType, rm.NoteFieldTypes(tx), b.NoteFieldTypes,
		recordHooks[*models.NoteFieldType]{}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityNote, rm.Notes(tx), b.Notes, recordHooks[*models.Note]{
		written: func(_ context.Context, n *models.Note) error {
			if n.Deleted() {
				p.deadNotes = append(p.deadNotes, n.ID)
			}
			return nil
		},
	}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityNoteType, rm.NoteTypes(tx), deadTypes, recordHooks[*models.NoteType]{
		allow: func(ctx context.Context, nt *models.NoteType) (bool, error) {
			n, err := rm.Notes(tx).CountLiveByNoteType(ctx, nt.ID)
			return n == 0, err
		},
		written: markDeadType,
	}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityNoteFieldValue, rm.NoteFieldValues(tx), b.NoteFieldValues,
		recordHooks[*models.NoteFieldValue]{}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityCard, rm.Cards(tx), b.Cards, recordHooks[*models.Card]{}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityReviewLog, rm.ReviewLogs(tx), b.ReviewLogs,
		recordHooks[*models.ReviewLog]{}); err != nil {
		return err
	}

	if err := pushRecords(ctx, s, p, models.EntityDocument, rm.Documents(tx), b.Documents, recordHooks[*models.Document]{
		prepare: func(ctx context.Context, doc *models.Document, d Decision) error {
			// The server owns blob placement. A tombstone keeps the stored key.
			if d == DecisionApply && !doc.Deleted() {
				old, err := rm.Documents(tx).StorageKey(ctx, doc.ID)
				if err != nil {
					return err
				}
				if old != "" {
					p.staleKeys = append(p.staleKeys, old)
				}
			}
			doc.StorageKey, doc.UploadStatus = "", ""
			if !doc.Deleted() {
				doc.StorageKey = s.blobs.NewKey(p.now)
			}
			if !doc.Deleted() || d == DecisionInsert {
				doc.UploadStatus = models.UploadPending
			}
			return nil
		},
		written: func(ctx context.Context, doc *models.Document) error {
			if doc.Deleted() {
				return nil
			}
			url, err := s.blobs.PresignPut(ctx, doc.StorageKey)
			if err != nil {
				return err
			}
			p.result.UploadTasks = append(p.result.UploadTasks, &models.DocumentUploadTask{DocumentID: doc.ID, URL: url})
			return nil
		},
	}); err != nil {
		return err
	}

	return s.cascadeTombstones(ctx, tx, p)
}

// cascadeTombstones propagates pushed deck, note type and note tombstones to
// live children, including children written later in the same batch.
func (s *SyncService) cascadeTombstones(ctx context.Context, tx dbx.DBTX, p *pushRun) error {
	for _, id := range p.deadDecks {
		cards, notes, err := s.cascade.cascadeDeck(ctx, tx, id, p.now)
		if err != nil {
			return err
		}
		s.logger.Debug(ctx, "pushed deck tombstone cascaded", "deck_id", id, "notes", notes, "cards", cards)
	}
	for _, id := range p.deadTypes {
		if _, err := s.cascade.cascadeNoteType(ctx, tx, id, p.now); err != nil {
			return err
		}
	}
	for _, id := range p.deadNotes {
		n, err := s.cascade.cascadeNote(ctx, tx, id, p.now)
		if err != nil {
			return err
		}
		s.logger.Debug(ctx, "pushed note tombstone cascaded", "note_id", id, "cards", n)
	}
	return nil
}

func countIDs(m map[models.EntityType][]string) int {
	n := 0
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// Pull returns every row visible to userID with a version above
// lastSyncVersion, tombstones included. All selects share one snapshot.
func (s *SyncService) Pull(ctx context.Context, userID string, lastSyncVersion int64) (result *models.PullResult, err error) {
	ctx, span := tracer.Start(ctx, "SyncService.Pull", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("sync.last_version", lastSyncVersion),
	))
	defer func() { endSpan(span, err) }()

	if lastSyncVersion < 0 {
		return nil, &ValidationError{Field: "lastSyncVersion", Reason: "must not be negative"}
	}

	r := &models.PullResult{}
	err = dbx.WithReadTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		rm := s.repomanager
		var err error
		if r.Decks, err = rm.Decks(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.NoteTypes, err = rm.NoteTypes(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.NoteFieldTypes, err = rm.NoteFieldTypes(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.Notes, err = rm.Notes(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.NoteFieldValues, err = rm.NoteFieldValues(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.Cards, err = rm.Cards(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		if r.ReviewLogs, err = rm.ReviewLogs(tx).SelectUpdated(ctx, userID, lastSyncVersion); err != nil {
			return err
		}
		r.Documents, err = rm.Documents(tx).SelectUpdated(ctx, userID, lastSyncVersion)
		return err
	})
	if err != nil {
		return nil, storageError(err)
	}

	for _, doc := range r.Documents {
		if doc.Deleted() || doc.UploadStatus != models.UploadCompleted {
			continue
		}
		if doc.DownloadURL, err = s.blobs.PresignGet(ctx, doc.StorageKey); err != nil {
			return nil, storageError(err)
		}
	}

	r.CurrentSyncVersion = Watermark(lastSyncVersion, versions(r)...)
	span.SetAttributes(attribute.Int("pull.rows", r.Len()), attribute.Int64("sync.current_version", r.CurrentSyncVersion))
	return r, nil
}

func versions(r *models.PullResult) []int64 {
	vs := make([]int64, 0, r.Len())
	add := func(env *models.Envelope) { vs = append(vs, env.SyncVersion) }
	for _, x := range r.Decks {
		add(x.Env())
	}
	for _, x := range r.NoteTypes {
		add(x.Env())
	}
	for _, x := range r.NoteFieldTypes {
		add(x.Env())
	}
	for _, x := range r.Notes {
		add(x.Env())
	}
	for _, x := range r.NoteFieldValues {
		add(x.Env())
	}
	for _, x := range r.Cards {
		add(x.Env())
	}
	for _, x := range r.ReviewLogs {
		add(x.Env())
	}
	for _, x := range r.Documents {
		add(x.Env())
	}
	return vs
}

// MarkUploaded records that the client finished uploading a document blob.
func (s *SyncService) MarkUploaded(ctx context.Context, userID, documentID string) (doc *models.Document, err error) {
	ctx, span := tracer.Start(ctx, "SyncService.MarkUploaded", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("document.id", documentID),
	))
	defer func() { endSpan(span, err) }()

	doc, err = s.repomanager.Documents(s.db).MarkUploaded(ctx, userID, documentID, s.now())
	if err != nil {
		return nil, storageError(err)
	}
	return doc, nil
}
