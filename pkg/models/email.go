package models

import "time"

// Email is a mirrored mailbox message. Rows are immutable once stored;
// identity is the external UID.
type Email struct {
	ID          int64     `db:"id"`
	UID         string    `db:"uid"`          // Opaque identifier from the remote source
	Sender      string    `db:"sender"`       // Sender address or display name
	Subject     string    `db:"subject"`      // Email subject
	Date        time.Time `db:"date"`         // Message timestamp from the source
	BodyPreview string    `db:"body_preview"` // First 200 chars of the body, newlines collapsed
	CreatedAt   time.Time `db:"created_at"`   // Ingestion timestamp
}

// EmailWithMeta pairs an email with its derived metadata. Meta is nil for
// messages that have not been analyzed yet.
type EmailWithMeta struct {
	Email
	Meta *EmailMeta
}

// RawMessage is a message as the external source yields it, before
// normalization into an Email.
type RawMessage struct {
	UID     string
	Sender  string
	Subject string
	Date    time.Time
	HasDate bool // false when the source did not carry a usable timestamp
	Body    string
}
