package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/cards"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/decks"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldtypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notefieldvalues"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/notetypes"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/reviewlogs"
)

var (
	t0      = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

// -------- in-memory store behind the fake repositories --------

type memStore struct {
	decks      map[string]*models.Deck
	noteTypes  map[string]*models.NoteType
	fieldTypes map[string]*models.NoteFieldType
	notes      map[string]*models.Note
	values     map[string]*models.NoteFieldValue
	cards      map[string]*models.Card
	logs       map[string]*models.ReviewLog
	docs       map[string]*models.Document

	// failOn makes the named repository method return errBoom.
	failOn string
	// loseInsert makes the next Insert of this id report a lost race after
	// storing the row, as a concurrent push would.
	loseInsert string
}

func newMemStore() *memStore {
	return &memStore{
		decks:      map[string]*models.Deck{},
		noteTypes:  map[string]*models.NoteType{},
		fieldTypes: map[string]*models.NoteFieldType{},
		notes:      map[string]*models.Note{},
		values:     map[string]*models.NoteFieldValue{},
		cards:      map[string]*models.Card{},
		logs:       map[string]*models.ReviewLog{},
		docs:       map[string]*models.Document{},
	}
}

func (s *memStore) fail(method string) error {
	if s.failOn == method {
		return errBoom
	}
	return nil
}

func (s *memStore) deckOwner(id string) string {
	if d, ok := s.decks[id]; ok {
		return d.UserID
	}
	return ""
}

func (s *memStore) noteTypeOwner(id string) string {
	if nt, ok := s.noteTypes[id]; ok {
		return nt.UserID
	}
	return ""
}

func (s *memStore) noteOwner(id string) string {
	if n, ok := s.notes[id]; ok {
		return s.deckOwner(n.DeckID)
	}
	return ""
}

func (s *memStore) fieldTypeOwner(id string) string {
	if f, ok := s.fieldTypes[id]; ok {
		return s.noteTypeOwner(f.NoteTypeID)
	}
	return ""
}

func (s *memStore) cardOwner(id string) string {
	if c, ok := s.cards[id]; ok {
		return s.deckOwner(c.DeckID)
	}
	return ""
}

// deletedAt returns the tombstone of row id, nil when it is live or missing.
func deletedAt[P models.Record](m map[string]P, id string) *time.Time {
	if r, ok := m[id]; ok {
		return r.Env().DeletedAt
	}
	return nil
}

// earliest returns the earliest non-nil time.
func earliest(ts ...*time.Time) *time.Time {
	var first *time.Time
	for _, t := range ts {
		if t != nil && (first == nil || t.Before(*first)) {
			first = t
		}
	}
	return first
}

func parentState(owned bool, dead ...*time.Time) *models.ParentState {
	if !owned {
		return &models.ParentState{}
	}
	return &models.ParentState{Owned: true, DeletedAt: earliest(dead...)}
}

func rowState(env *models.Envelope, owner, userID string) *models.RowState {
	return &models.RowState{UpdatedAt: env.UpdatedAt, SyncVersion: env.SyncVersion, Deleted: env.Deleted(), Owned: owner == userID}
}

func lockRow[P models.Record](m map[string]P, id, userID string, owner func(string) string) (*models.RowState, error) {
	r, ok := m[id]
	if !ok {
		return nil, nil
	}
	return rowState(r.Env(), owner(id), userID), nil
}

func insertRow[X any, P interface {
	*X
	models.Record
}](s *memStore, m map[string]P, rec P) bool {
	id := rec.Env().ID
	if _, ok := m[id]; ok {
		return false
	}
	c := *rec
	m[id] = P(&c)
	if s.loseInsert == id {
		s.loseInsert = ""
		return false
	}
	return true
}

func updateRow[X any, P interface {
	*X
	models.Record
}](m map[string]P, rec P) error {
	cur, ok := m[rec.Env().ID]
	if !ok {
		return common.ErrorNotFound
	}
	c := *rec
	next := P(&c)
	next.Env().CreatedAt = cur.Env().CreatedAt
	if cur.Env().DeletedAt != nil {
		next.Env().DeletedAt = cur.Env().DeletedAt
	}
	m[rec.Env().ID] = next
	return nil
}

func softDelete(env *models.Envelope, at time.Time) bool {
	if env.DeletedAt != nil {
		return false
	}
	d := at
	env.DeletedAt = &d
	if at.After(env.UpdatedAt) {
		env.UpdatedAt = at
	}
	env.SyncVersion++
	return true
}

func bump(env *models.Envelope, at time.Time) {
	if at.After(env.UpdatedAt) {
		env.UpdatedAt = at
	}
	env.SyncVersion++
}

func selectRows[X any, P interface {
	*X
	models.Record
}](m map[string]P, min int64, visible func(P) bool) []P {
	var out []P
	for _, r := range m {
		if r.Env().SyncVersion > min && visible(r) {
			c := *r
			out = append(out, P(&c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Env().ID < out[j].Env().ID })
	return out
}

var errForeignKey = errors.New("foreign key violation")

// deleteIDs removes ids from m like DELETE ... WHERE id = ANY, failing as a
// foreign key would when referenced reports a row still pointing at one.
func deleteIDs[P any](m map[string]P, ids []string, referenced func(id string) bool) (int64, error) {
	for _, id := range ids {
		if _, ok := m[id]; ok && referenced != nil && referenced(id) {
			return 0, fmt.Errorf("delete %s: %w", id, errForeignKey)
		}
	}
	var n int64
	for _, id := range ids {
		if _, ok := m[id]; ok {
			delete(m, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) deckReferenced(id string) bool {
	for _, n := range s.notes {
		if n.DeckID == id {
			return true
		}
	}
	for _, c := range s.cards {
		if c.DeckID == id {
			return true
		}
	}
	return false
}

func (s *memStore) noteTypeReferenced(id string) bool {
	for _, n := range s.notes {
		if n.NoteTypeID == id {
			return true
		}
	}
	for _, ft := range s.fieldTypes {
		if ft.NoteTypeID == id {
			return true
		}
	}
	return false
}

func (s *memStore) fieldTypeReferenced(id string) bool {
	for _, v := range s.values {
		if v.FieldTypeID == id {
			return true
		}
	}
	return false
}

func (s *memStore) noteReferenced(id string) bool {
	for _, c := range s.cards {
		if c.NoteID == id {
			return true
		}
	}
	for _, v := range s.values {
		if v.NoteID == id {
			return true
		}
	}
	return false
}

func (s *memStore) cardReferenced(id string) bool {
	for _, l := range s.logs {
		if l.CardID == id {
			return true
		}
	}
	return false
}

func tombstonedBefore(env *models.Envelope, cutoff time.Time) bool {
	return env.DeletedAt != nil && env.DeletedAt.Before(cutoff)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func sortedLimit(ids []string, limit int) []string {
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// -------- fake repositories --------

type fakeDecks struct {
	decks.Repository
	s *memStore
}

func (f *fakeDecks) LockParents(_ context.Context, userID string, d *models.Deck) (*models.ParentState, error) {
	return parentState(d.UserID == userID), f.s.fail("decks.LockParents")
}
func (f *fakeDecks) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	if err := f.s.fail("decks.LockState"); err != nil {
		return nil, err
	}
	return lockRow(f.s.decks, id, userID, f.s.deckOwner)
}
func (f *fakeDecks) Insert(_ context.Context, d *models.Deck) (bool, error) {
	return insertRow(f.s, f.s.decks, d), f.s.fail("decks.Insert")
}
func (f *fakeDecks) Update(_ context.Context, d *models.Deck) error {
	if err := f.s.fail("decks.Update"); err != nil {
		return err
	}
	return updateRow(f.s.decks, d)
}
func (f *fakeDecks) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.Deck, error) {
	return selectRows(f.s.decks, min, func(d *models.Deck) bool { return d.UserID == userID }), f.s.fail("decks.SelectUpdated")
}
func (f *fakeDecks) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	d, ok := f.s.decks[id]
	return ok && softDelete(&d.Envelope, at), f.s.fail("decks.SoftDelete")
}
func (f *fakeDecks) PurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	for id, d := range f.s.decks {
		if !tombstonedBefore(&d.Envelope, cutoff) {
			continue
		}
		used := false
		for _, n := range f.s.notes {
			used = used || n.DeckID == id
		}
		for _, c := range f.s.cards {
			used = used || c.DeckID == id
		}
		if !used {
			ids = append(ids, id)
		}
	}
	return sortedLimit(ids, limit), f.s.fail("decks.PurgeCandidates")
}
func (f *fakeDecks) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	if err := f.s.fail("decks.DeleteByIDs"); err != nil {
		return 0, err
	}
	return deleteIDs(f.s.decks, ids, f.s.deckReferenced)
}

type fakeNoteTypes struct {
	notetypes.Repository
	s *memStore
}

func (f *fakeNoteTypes) LockParents(_ context.Context, userID string, nt *models.NoteType) (*models.ParentState, error) {
	return parentState(nt.UserID == userID), nil
}
func (f *fakeNoteTypes) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.noteTypes, id, userID, f.s.noteTypeOwner)
}
func (f *fakeNoteTypes) Insert(_ context.Context, nt *models.NoteType) (bool, error) {
	return insertRow(f.s, f.s.noteTypes, nt), nil
}
func (f *fakeNoteTypes) Update(_ context.Context, nt *models.NoteType) error {
	return updateRow(f.s.noteTypes, nt)
}
func (f *fakeNoteTypes) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.NoteType, error) {
	return selectRows(f.s.noteTypes, min, func(nt *models.NoteType) bool { return nt.UserID == userID }), nil
}
func (f *fakeNoteTypes) Get(_ context.Context, userID, id string) (*models.NoteType, error) {
	nt, ok := f.s.noteTypes[id]
	if !ok || nt.UserID != userID || nt.Deleted() {
		return nil, common.ErrorNotFound
	}
	c := *nt
	return &c, nil
}
func (f *fakeNoteTypes) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	nt, ok := f.s.noteTypes[id]
	return ok && softDelete(&nt.Envelope, at), nil
}
func (f *fakeNoteTypes) PurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	for id, nt := range f.s.noteTypes {
		if !tombstonedBefore(&nt.Envelope, cutoff) {
			continue
		}
		used := false
		for _, n := range f.s.notes {
			used = used || n.NoteTypeID == id
		}
		for _, v := range f.s.values {
			if ft, ok := f.s.fieldTypes[v.FieldTypeID]; ok && ft.NoteTypeID == id {
				used = true
			}
		}
		if !used {
			ids = append(ids, id)
		}
	}
	return sortedLimit(ids, limit), f.s.fail("notetypes.PurgeCandidates")
}
func (f *fakeNoteTypes) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	return deleteIDs(f.s.noteTypes, ids, f.s.noteTypeReferenced)
}

type fakeFieldTypes struct {
	notefieldtypes.Repository
	s *memStore
}

func (f *fakeFieldTypes) LockParents(_ context.Context, userID string, ft *models.NoteFieldType) (*models.ParentState, error) {
	return parentState(f.s.noteTypeOwner(ft.NoteTypeID) == userID, deletedAt(f.s.noteTypes, ft.NoteTypeID)), nil
}
func (f *fakeFieldTypes) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.fieldTypes, id, userID, f.s.fieldTypeOwner)
}
func (f *fakeFieldTypes) Insert(_ context.Context, ft *models.NoteFieldType) (bool, error) {
	return insertRow(f.s, f.s.fieldTypes, ft), nil
}
func (f *fakeFieldTypes) Update(_ context.Context, ft *models.NoteFieldType) error {
	return updateRow(f.s.fieldTypes, ft)
}
func (f *fakeFieldTypes) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.NoteFieldType, error) {
	return selectRows(f.s.fieldTypes, min, func(ft *models.NoteFieldType) bool {
		return f.s.noteTypeOwner(ft.NoteTypeID) == userID
	}), nil
}
func (f *fakeFieldTypes) ListByNoteType(_ context.Context, noteTypeID string) ([]*models.NoteFieldType, error) {
	var out []*models.NoteFieldType
	for _, ft := range f.s.fieldTypes {
		if ft.NoteTypeID == noteTypeID && !ft.Deleted() {
			c := *ft
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
func (f *fakeFieldTypes) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	ft, ok := f.s.fieldTypes[id]
	return ok && softDelete(&ft.Envelope, at), nil
}
func (f *fakeFieldTypes) SoftDeleteByNoteType(_ context.Context, noteTypeID string, at time.Time) (int64, error) {
	var n int64
	for _, ft := range f.s.fieldTypes {
		if ft.NoteTypeID == noteTypeID && softDelete(&ft.Envelope, at) {
			n++
		}
	}
	return n, f.s.fail("notefieldtypes.SoftDeleteByNoteType")
}
func (f *fakeFieldTypes) PurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	for id, ft := range f.s.fieldTypes {
		if !tombstonedBefore(&ft.Envelope, cutoff) {
			continue
		}
		used := false
		for _, v := range f.s.values {
			used = used || v.FieldTypeID == id
		}
		if !used {
			ids = append(ids, id)
		}
	}
	return sortedLimit(ids, limit), nil
}
func (f *fakeFieldTypes) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	return deleteIDs(f.s.fieldTypes, ids, f.s.fieldTypeReferenced)
}
func (f *fakeFieldTypes) DeleteByNoteTypeIDs(_ context.Context, noteTypeIDs []string) (int64, error) {
	var ids []string
	for id, ft := range f.s.fieldTypes {
		if contains(noteTypeIDs, ft.NoteTypeID) {
			ids = append(ids, id)
		}
	}
	return deleteIDs(f.s.fieldTypes, ids, f.s.fieldTypeReferenced)
}

type fakeNotes struct {
	notes.Repository
	s *memStore
}

func (f *fakeNotes) LockParents(_ context.Context, userID string, n *models.Note) (*models.ParentState, error) {
	return parentState(f.s.deckOwner(n.DeckID) == userID && f.s.noteTypeOwner(n.NoteTypeID) == userID,
		deletedAt(f.s.decks, n.DeckID), deletedAt(f.s.noteTypes, n.NoteTypeID)), nil
}
func (f *fakeNotes) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	if err := f.s.fail("notes.LockState"); err != nil {
		return nil, err
	}
	return lockRow(f.s.notes, id, userID, f.s.noteOwner)
}
func (f *fakeNotes) Insert(_ context.Context, n *models.Note) (bool, error) {
	return insertRow(f.s, f.s.notes, n), nil
}
func (f *fakeNotes) Update(_ context.Context, n *models.Note) error {
	return updateRow(f.s.notes, n)
}
func (f *fakeNotes) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.Note, error) {
	return selectRows(f.s.notes, min, func(n *models.Note) bool { return f.s.deckOwner(n.DeckID) == userID }), nil
}
func (f *fakeNotes) Get(_ context.Context, userID, id string) (*models.Note, error) {
	n, ok := f.s.notes[id]
	if !ok || f.s.deckOwner(n.DeckID) != userID || n.Deleted() {
		return nil, common.ErrorNotFound
	}
	c := *n
	return &c, nil
}
func (f *fakeNotes) Touch(_ context.Context, id string, at time.Time) error {
	if n, ok := f.s.notes[id]; ok {
		bump(&n.Envelope, at)
	}
	return nil
}
func (f *fakeNotes) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	n, ok := f.s.notes[id]
	return ok && softDelete(&n.Envelope, at), nil
}
func (f *fakeNotes) SoftDeleteByDeck(_ context.Context, deckID string, at time.Time) (int64, error) {
	var c int64
	for _, n := range f.s.notes {
		if n.DeckID == deckID && softDelete(&n.Envelope, at) {
			c++
		}
	}
	return c, nil
}
func (f *fakeNotes) CountLiveByNoteType(_ context.Context, noteTypeID string) (int64, error) {
	var c int64
	for _, n := range f.s.notes {
		if n.NoteTypeID == noteTypeID && !n.Deleted() {
			c++
		}
	}
	return c, nil
}
func (f *fakeNotes) PurgeCandidates(_ context.Context, cutoff time.Time, limit int, purgingCardIDs []string) ([]string, error) {
	var ids []string
	for id, n := range f.s.notes {
		if !tombstonedBefore(&n.Envelope, cutoff) {
			continue
		}
		blocked := false
		for cid, c := range f.s.cards {
			blocked = blocked || (c.NoteID == id && !contains(purgingCardIDs, cid))
		}
		if !blocked {
			ids = append(ids, id)
		}
	}
	return sortedLimit(ids, limit), nil
}
func (f *fakeNotes) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	return deleteIDs(f.s.notes, ids, f.s.noteReferenced)
}

type fakeValues struct {
	notefieldvalues.Repository
	s *memStore
}

func (f *fakeValues) LockParents(_ context.Context, userID string, v *models.NoteFieldValue) (*models.ParentState, error) {
	return parentState(f.s.noteOwner(v.NoteID) == userID && f.s.fieldTypeOwner(v.FieldTypeID) == userID,
		deletedAt(f.s.notes, v.NoteID)), nil
}
func (f *fakeValues) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.values, id, userID, func(id string) string { return f.s.noteOwner(f.s.values[id].NoteID) })
}
func (f *fakeValues) Insert(_ context.Context, v *models.NoteFieldValue) (bool, error) {
	return insertRow(f.s, f.s.values, v), nil
}
func (f *fakeValues) Update(_ context.Context, v *models.NoteFieldValue) error {
	return updateRow(f.s.values, v)
}
func (f *fakeValues) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.NoteFieldValue, error) {
	return selectRows(f.s.values, min, func(v *models.NoteFieldValue) bool { return f.s.noteOwner(v.NoteID) == userID }), nil
}
func (f *fakeValues) ListByNote(_ context.Context, noteID string) ([]*models.NoteFieldValue, error) {
	var out []*models.NoteFieldValue
	for _, v := range f.s.values {
		if v.NoteID == noteID && !v.Deleted() {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return f.s.fieldTypes[out[i].FieldTypeID].Order < f.s.fieldTypes[out[j].FieldTypeID].Order
	})
	return out, nil
}
func (f *fakeValues) SetValue(_ context.Context, id, value string, at time.Time) error {
	v, ok := f.s.values[id]
	if !ok {
		return common.ErrorNotFound
	}
	v.Value = value
	bump(&v.Envelope, at)
	return nil
}
func (f *fakeValues) CountByFieldType(_ context.Context, fieldTypeID string) (int64, error) {
	var c int64
	for _, v := range f.s.values {
		if n, ok := f.s.notes[v.NoteID]; ok && v.FieldTypeID == fieldTypeID && !v.Deleted() && !n.Deleted() {
			c++
		}
	}
	return c, f.s.fail("notefieldvalues.CountByFieldType")
}
func (f *fakeValues) DeleteByNoteIDs(_ context.Context, noteIDs []string) (int64, error) {
	var ids []string
	for id, v := range f.s.values {
		if contains(noteIDs, v.NoteID) {
			ids = append(ids, id)
		}
	}
	return deleteIDs(f.s.values, ids, nil)
}
func (f *fakeValues) DeleteTombstoned(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	var ids []string
	for id, v := range f.s.values {
		if tombstonedBefore(&v.Envelope, cutoff) {
			ids = append(ids, id)
		}
	}
	return deleteIDs(f.s.values, sortedLimit(ids, limit), nil)
}

type fakeCards struct {
	cards.Repository
	s *memStore
}

func (f *fakeCards) LockParents(_ context.Context, userID string, c *models.Card) (*models.ParentState, error) {
	return parentState(f.s.deckOwner(c.DeckID) == userID && f.s.noteOwner(c.NoteID) == userID,
		deletedAt(f.s.decks, c.DeckID), deletedAt(f.s.notes, c.NoteID)), nil
}
func (f *fakeCards) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.cards, id, userID, f.s.cardOwner)
}
func (f *fakeCards) Insert(_ context.Context, c *models.Card) (bool, error) {
	return insertRow(f.s, f.s.cards, c), f.s.fail("cards.Insert")
}
func (f *fakeCards) Update(_ context.Context, c *models.Card) error {
	return updateRow(f.s.cards, c)
}
func (f *fakeCards) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.Card, error) {
	return selectRows(f.s.cards, min, func(c *models.Card) bool { return f.s.deckOwner(c.DeckID) == userID }), f.s.fail("cards.SelectUpdated")
}
func (f *fakeCards) ListByNote(_ context.Context, noteID string) ([]*models.Card, error) {
	var out []*models.Card
	for _, c := range f.s.cards {
		if c.NoteID == noteID && !c.Deleted() {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return !out[i].IsReversed && out[j].IsReversed })
	return out, nil
}
func (f *fakeCards) SetFaces(_ context.Context, id, front, back string, at time.Time) error {
	c, ok := f.s.cards[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Front, c.Back = front, back
	bump(&c.Envelope, at)
	return nil
}
func (f *fakeCards) SoftDeleteByNote(_ context.Context, noteID string, at time.Time) (int64, error) {
	if err := f.s.fail("cards.SoftDeleteByNote"); err != nil {
		return 0, err
	}
	var n int64
	for _, c := range f.s.cards {
		if c.NoteID == noteID && softDelete(&c.Envelope, at) {
			n++
		}
	}
	return n, nil
}
func (f *fakeCards) SoftDeleteByDeck(_ context.Context, deckID string, at time.Time) (int64, error) {
	var n int64
	for _, c := range f.s.cards {
		if c.DeckID == deckID && softDelete(&c.Envelope, at) {
			n++
		}
	}
	return n, nil
}
func (f *fakeCards) PurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	for id, c := range f.s.cards {
		if tombstonedBefore(&c.Envelope, cutoff) {
			ids = append(ids, id)
		}
	}
	return sortedLimit(ids, limit), f.s.fail("cards.PurgeCandidates")
}
func (f *fakeCards) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	return deleteIDs(f.s.cards, ids, f.s.cardReferenced)
}

type fakeLogs struct {
	reviewlogs.Repository
	s *memStore
}

func (f *fakeLogs) LockParents(_ context.Context, userID string, l *models.ReviewLog) (*models.ParentState, error) {
	return parentState(f.s.cardOwner(l.CardID) == userID, deletedAt(f.s.cards, l.CardID)), nil
}
func (f *fakeLogs) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.logs, id, userID, func(id string) string { return f.s.cardOwner(f.s.logs[id].CardID) })
}
func (f *fakeLogs) Insert(_ context.Context, l *models.ReviewLog) (bool, error) {
	return insertRow(f.s, f.s.logs, l), nil
}
func (f *fakeLogs) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.ReviewLog, error) {
	return selectRows(f.s.logs, min, func(l *models.ReviewLog) bool { return f.s.cardOwner(l.CardID) == userID }), nil
}
func (f *fakeLogs) DeleteByCardIDs(_ context.Context, cardIDs []string) (int64, error) {
	var ids []string
	for id, l := range f.s.logs {
		if contains(cardIDs, l.CardID) {
			ids = append(ids, id)
		}
	}
	return deleteIDs(f.s.logs, ids, nil)
}
func (f *fakeLogs) DeleteTombstoned(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	var ids []string
	for id, l := range f.s.logs {
		if tombstonedBefore(&l.Envelope, cutoff) {
			ids = append(ids, id)
		}
	}
	return deleteIDs(f.s.logs, sortedLimit(ids, limit), nil)
}

type fakeDocs struct {
	documents.Repository
	s *memStore
}

func (f *fakeDocs) LockParents(_ context.Context, userID string, d *models.Document) (*models.ParentState, error) {
	return parentState(d.UserID == userID), nil
}
func (f *fakeDocs) LockState(_ context.Context, userID, id string) (*models.RowState, error) {
	return lockRow(f.s.docs, id, userID, func(id string) string { return f.s.docs[id].UserID })
}
func (f *fakeDocs) StorageKey(_ context.Context, id string) (string, error) {
	d, ok := f.s.docs[id]
	if !ok {
		return "", common.ErrorNotFound
	}
	return d.StorageKey, f.s.fail("documents.StorageKey")
}

// Insert skips a document whose entity already has a live one, as the
// partial unique index does.
func (f *fakeDocs) Insert(_ context.Context, d *models.Document) (bool, error) {
	for _, cur := range f.s.docs {
		if cur.ID != d.ID && !cur.Deleted() && !d.Deleted() &&
			cur.UserID == d.UserID && cur.EntityType == d.EntityType && cur.EntityID == d.EntityID {
			return false, nil
		}
	}
	return insertRow(f.s, f.s.docs, d), nil
}
func (f *fakeDocs) Update(_ context.Context, d *models.Document) error {
	cur, ok := f.s.docs[d.ID]
	if !ok {
		return common.ErrorNotFound
	}
	key, status := cur.StorageKey, cur.UploadStatus
	if err := updateRow(f.s.docs, d); err != nil {
		return err
	}
	next := f.s.docs[d.ID]
	if next.StorageKey == "" {
		next.StorageKey = key
	}
	if next.UploadStatus == "" {
		next.UploadStatus = status
	}
	return nil
}
func (f *fakeDocs) SelectUpdated(_ context.Context, userID string, min int64) ([]*models.Document, error) {
	return selectRows(f.s.docs, min, func(d *models.Document) bool { return d.UserID == userID }), nil
}
func (f *fakeDocs) MarkUploaded(_ context.Context, userID, id string, at time.Time) (*models.Document, error) {
	d, ok := f.s.docs[id]
	if !ok || d.UserID != userID || d.Deleted() {
		return nil, common.ErrorNotFound
	}
	if d.UploadStatus != models.UploadCompleted {
		d.UploadStatus = models.UploadCompleted
		bump(&d.Envelope, at)
	}
	c := *d
	return &c, nil
}
func (f *fakeDocs) PurgeCandidates(_ context.Context, cutoff time.Time, limit int) ([]*models.Document, error) {
	var ids []string
	for id, d := range f.s.docs {
		if tombstonedBefore(&d.Envelope, cutoff) {
			ids = append(ids, id)
		}
	}
	var out []*models.Document
	for _, id := range sortedLimit(ids, limit) {
		c := *f.s.docs[id]
		out = append(out, &c)
	}
	return out, nil
}
func (f *fakeDocs) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	return deleteIDs(f.s.docs, ids, nil)
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	s *memStore
}

func (m *fakeRepoManager) Decks(dbx.DBTX) decks.Repository { return &fakeDecks{s: m.s} }
func (m *fakeRepoManager) NoteTypes(dbx.DBTX) notetypes.Repository {
	return &fakeNoteTypes{s: m.s}
}
func (m *fakeRepoManager) NoteFieldTypes(dbx.DBTX) notefieldtypes.Repository {
	return &fakeFieldTypes{s: m.s}
}
func (m *fakeRepoManager) Notes(dbx.DBTX) notes.Repository { return &fakeNotes{s: m.s} }
func (m *fakeRepoManager) NoteFieldValues(dbx.DBTX) notefieldvalues.Repository {
	return &fakeValues{s: m.s}
}
func (m *fakeRepoManager) Cards(dbx.DBTX) cards.Repository           { return &fakeCards{s: m.s} }
func (m *fakeRepoManager) ReviewLogs(dbx.DBTX) reviewlogs.Repository { return &fakeLogs{s: m.s} }
func (m *fakeRepoManager) Documents(dbx.DBTX) documents.Repository   { return &fakeDocs{s: m.s} }

// -------- fake blob store --------

type fakeBlobs struct {
	keys      int
	deleted   []string
	presigned []string
	err       error
	deleteErr error
}

func (b *fakeBlobs) NewKey(time.Time) string {
	b.keys++
	return "key-" + strconv.Itoa(b.keys)
}
func (b *fakeBlobs) PresignPut(_ context.Context, key string) (string, error) {
	b.presigned = append(b.presigned, key)
	return "http://put/" + key, b.err
}
func (b *fakeBlobs) PresignGet(_ context.Context, key string) (string, error) {
	return "http://get/" + key, b.err
}
func (b *fakeBlobs) Delete(_ context.Context, keys []string) error {
	b.deleted = append(b.deleted, keys...)
	return b.deleteErr
}

// -------- helpers --------

// newSQLMockDB returns a mock that accepts any number of transactions, for
// tests that exercise services through the fake repositories.
func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTx queues n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

type harness struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	store   *memStore
	blobs   *fakeBlobs
	cascade *CascadeService
	sync    *SyncService
	notes   *NoteService
	purge   *PurgeService
	clock   *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	rm := &fakeRepoManager{s: store}
	b := &fakeBlobs{}
	log := logging.Nop{}

	now := t0
	clock := func() time.Time { return now }

	cascade := NewCascadeService(db, rm, log)
	cascade.now = clock
	syncSvc := NewSyncService(db, rm, b, cascade, log)
	syncSvc.now = clock
	noteSvc := NewNoteService(db, rm, nil, log)
	noteSvc.now = clock
	ids := 0
	noteSvc.newID = func() string {
		ids++
		return uuidFor(ids)
	}
	purgeSvc := NewPurgeService(db, rm, b, log)
	purgeSvc.now = clock

	return &harness{db: db, mock: mock, store: store, blobs: b, cascade: cascade,
		sync: syncSvc, notes: noteSvc, purge: purgeSvc, clock: &now}
}

// advance moves the service clock forward.
func (h *harness) advance(d time.Duration) { *h.clock = h.clock.Add(d) }

// uuidFor returns a deterministic valid UUID for n.
func uuidFor(n int) string {
	const hex = "0123456789abcdef"
	b := []byte("00000000-0000-4000-8000-000000000000")
	for i := len(b) - 1; n > 0 && i >= 0; i-- {
		if b[i] == '-' {
			continue
		}
		b[i] = hex[n%16]
		n /= 16
	}
	return string(b)
}
