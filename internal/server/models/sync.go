package models

// PushBatch groups client-authored records per entity type.
type PushBatch struct {
	Decks           []*Deck           `json:"decks,omitempty"`
	NoteTypes       []*NoteType       `json:"noteTypes,omitempty"`
	NoteFieldTypes  []*NoteFieldType  `json:"noteFieldTypes,omitempty"`
	Notes           []*Note           `json:"notes,omitempty"`
	NoteFieldValues []*NoteFieldValue `json:"noteFieldValues,omitempty"`
	Cards           []*Card           `json:"cards,omitempty"`
	ReviewLogs      []*ReviewLog      `json:"reviewLogs,omitempty"`
	Documents       []*Document       `json:"documents,omitempty"`
}

// Len is the number of records in the batch.
func (b *PushBatch) Len() int {
	return len(b.Decks) + len(b.NoteTypes) + len(b.NoteFieldTypes) + len(b.Notes) +
		len(b.NoteFieldValues) + len(b.Cards) + len(b.ReviewLogs) + len(b.Documents)
}

// Ack is the authoritative version of a pushed row.
type Ack struct {
	ID          string `json:"id"`
	SyncVersion int64  `json:"syncVersion"`
}

// PushResult reports, per entity type, the acknowledged rows and the ids the
// server rejected in favor of its own copy. Conflicting rows are acknowledged
// too, with the server's version. Skipped rows appear in neither list.
type PushResult struct {
	Acks        map[EntityType][]Ack    `json:"acks"`
	Conflicts   map[EntityType][]string `json:"conflicts"`
	UploadTasks []*DocumentUploadTask   `json:"uploadTasks,omitempty"`
}

func NewPushResult() *PushResult {
	return &PushResult{
		Acks:      map[EntityType][]Ack{},
		Conflicts: map[EntityType][]string{},
	}
}

// PullResult carries every row visible to the caller whose version is above
// the requested watermark, plus the new watermark.
type PullResult struct {
	Decks              []*Deck           `json:"decks"`
	NoteTypes          []*NoteType       `json:"noteTypes"`
	NoteFieldTypes     []*NoteFieldType  `json:"noteFieldTypes"`
	Notes              []*Note           `json:"notes"`
	NoteFieldValues    []*NoteFieldValue `json:"noteFieldValues"`
	Cards              []*Card           `json:"cards"`
	ReviewLogs         []*ReviewLog      `json:"reviewLogs"`
	Documents          []*Document       `json:"documents"`
	CurrentSyncVersion int64             `json:"currentSyncVersion"`
}

// Len is the number of rows in the delta.
func (p *PullResult) Len() int {
	return len(p.Decks) + len(p.NoteTypes) + len(p.NoteFieldTypes) + len(p.Notes) +
		len(p.NoteFieldValues) + len(p.Cards) + len(p.ReviewLogs) + len(p.Documents)
}

// PurgeOptions bounds one purge pass.
type PurgeOptions struct {
	RetentionDays int `json:"retentionDays"`
	BatchSize     int `json:"batchSize,omitempty"`
}

// PurgeCounts is the number of rows removed per entity type.
type PurgeCounts struct {
	ReviewLogs      int64 `json:"reviewLogs"`
	NoteFieldValues int64 `json:"noteFieldValues"`
	Cards           int64 `json:"cards"`
	Notes           int64 `json:"notes"`
	NoteFieldTypes  int64 `json:"noteFieldTypes"`
	NoteTypes       int64 `json:"noteTypes"`
	Decks           int64 `json:"decks"`
	Documents       int64 `json:"documents"`
}

// Total is the sum over all entity types.
func (c PurgeCounts) Total() int64 {
	return c.ReviewLogs + c.NoteFieldValues + c.Cards + c.Notes +
		c.NoteFieldTypes + c.NoteTypes + c.Decks + c.Documents
}
