package models

import "time"

// CardState is the scheduling phase of a card.
type CardState string

const (
	CardStateNew        CardState = "new"
	CardStateLearning   CardState = "learning"
	CardStateReview     CardState = "review"
	CardStateRelearning CardState = "relearning"
)

// Valid reports whether s is one of the known states.
func (s CardState) Valid() bool {
	switch s {
	case CardStateNew, CardStateLearning, CardStateReview, CardStateRelearning:
		return true
	}
	return false
}

// Schedule is produced by the external scheduler on review. The server only
// persists and versions it.
type Schedule struct {
	State         CardState `json:"state"`
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsedDays"`
	ScheduledDays int       `json:"scheduledDays"`
}

// Card is generated from a note and belongs to the note's deck.
type Card struct {
	Envelope
	Schedule
	NoteID     string     `json:"noteId"`
	DeckID     string     `json:"deckId"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	IsReversed bool       `json:"isReversed"`
	Reps       int        `json:"reps"`
	Lapses     int        `json:"lapses"`
	LastReview *time.Time `json:"lastReview,omitempty"`
}

// Rating grades a review, from Again (1) to Easy (4).
type Rating int

const (
	RatingAgain Rating = iota + 1
	RatingHard
	RatingGood
	RatingEasy
)

func (r Rating) Valid() bool { return r >= RatingAgain && r <= RatingEasy }

// ReviewLog is an append-only record of one review. It is never updated,
// only purged together with its card.
type ReviewLog struct {
	Envelope
	Schedule
	CardID     string    `json:"cardId"`
	Rating     Rating    `json:"rating"`
	ReviewedAt time.Time `json:"reviewedAt"`
}
