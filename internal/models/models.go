package models

import (
	"time"

	"voxpro/internal/apperr"
)

type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
	SourceQuick Source = "quick"
)

// Response is what a handler hands back for one command.
type Response struct {
	Text string      `json:"text"`
	OK   bool        `json:"ok"`
	Kind apperr.Kind `json:"kind,omitempty"`
}

func Success(text string) Response {
	return Response{Text: text, OK: true}
}

// Failure turns err into a spoken apology. The error itself never leaves the
// handler.
func Failure(err error) Response {
	return Response{
		Text: apperr.Message(err),
		OK:   false,
		Kind: apperr.KindOf(err),
	}
}

// Record is one history entry. It is written once and never updated.
type Record struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
	Input     string    `json:"input" db:"input"`
	Response  string    `json:"response" db:"response"`
	Command   string    `json:"command" db:"command"`
	Success   bool      `json:"success" db:"success"`
	Source    Source    `json:"source" db:"source"`
}

// Interaction is what front ends receive after a request completes.
type Interaction struct {
	Record
	Arg    string      `json:"arg,omitempty"`
	Kind   apperr.Kind `json:"kind,omitempty"`
	Spoken bool        `json:"spoken"`
}
