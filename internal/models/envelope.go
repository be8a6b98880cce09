package models

import "encoding/json"

// Envelope is an opaque payload addressed to one recipient mailbox.
type Envelope struct {
	From      string          `json:"from,omitempty"`
	To        string          `json:"to"`
	Body      json.RawMessage `json:"body"` // Caller-opaque; string or any JSON value
	TTL       int             `json:"ttl"`  // Seconds, after clamping
	Timestamp int64           `json:"ts"`   // Unix ms
}

// MailboxItem is an envelope as read back from a mailbox, with its store key.
type MailboxItem struct {
	Key      string
	Envelope Envelope
}
