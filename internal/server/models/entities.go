package models

// Deck is owned directly by a user and roots its notes and cards.
type Deck struct {
	Envelope
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NoteType defines card templates and, through NoteFieldType rows, the
// ordered fields of its notes.
type NoteType struct {
	Envelope
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	FrontTemplate string `json:"frontTemplate"`
	BackTemplate  string `json:"backTemplate"`
	IsReversible  bool   `json:"isReversible"`
}

type NoteFieldType struct {
	Envelope
	NoteTypeID string `json:"noteTypeId"`
	Name       string `json:"name"`
	// Order is unique among live field types of one note type.
	Order int `json:"order"`
}

// Note lives in one deck and is shaped by one note type.
type Note struct {
	Envelope
	DeckID     string `json:"deckId"`
	NoteTypeID string `json:"noteTypeId"`
}

type NoteFieldValue struct {
	Envelope
	NoteID      string `json:"noteId"`
	FieldTypeID string `json:"fieldTypeId"`
	Value       string `json:"value"`
}
