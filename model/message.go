package model

import "time"

// NoID marks an absent person or group identifier.
const NoID = -1

// Thread is one raw input unit handed to the parser: a parent message and
// any quoted children, exactly as read from its source.
type Thread struct {
	Source string
	Raw    []byte
}

// Envelope wraps a thread alongside an optional error encountered while reading it.
type Envelope struct {
	Thread Thread
	Err    error
}

// RawMessage is a single parsed message. It is never mutated after the parser
// produced it.
type RawMessage struct {
	Hash       string
	Date       time.Time
	NormDate   time.Time
	Subject    string
	Aliases    []string
	Sender     []string
	ParentHash string
}

// FileResult carries everything one thread contributed to the run.
type FileResult struct {
	Source   string
	FileHash string
	Messages []RawMessage
}

// NormalizeDate pins an instant to 12:00 UTC on its UTC calendar day.
func NormalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 12, 0, 0, 0, time.UTC)
}
