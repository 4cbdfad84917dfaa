package model

import "time"

// EmailRow is one row of the email and email_updated tables.
type EmailRow struct {
	Hash     string
	GroupID  int
	Subject  string
	Date     time.Time
	NormDate time.Time
	SenderID int
}

// UserMerge records a profile folded into another during reconciliation.
type UserMerge struct {
	ChildID  int
	ParentID int
}

// GroupRemap points a redundant or emptied group at its replacement.
// NewID is NoID when the group is deleted.
type GroupRemap struct {
	OldID int
	NewID int
}

type EmailGroup struct {
	Hash    string
	GroupID int
}

type EmailUser struct {
	Hash   string
	UserID int
}

// ThreadLink ties a quoted child message to the parent it was found under.
type ThreadLink struct {
	Hash       string
	ParentHash string
}
