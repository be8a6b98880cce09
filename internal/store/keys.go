package store

import "fmt"

// Key prefixes. Every key the gateway writes lives under one of these.
const (
	KeyPrefixMailbox     = "mbox:"
	KeyPrefixIdempotency = "idem:"
	KeyPrefixRateLimit   = "ratelimit:"
	KeyPrefixViolations  = "violations:"
	KeyPrefixBlocked     = "blocked:"
)

// mailboxKey returns the key of one envelope: mbox:<recipient>:<ulid>.
func mailboxKey(recipient, id string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixMailbox, recipient, id)
}

// mailboxPattern matches every envelope of a recipient.
func mailboxPattern(recipient string) string {
	return fmt.Sprintf("%s%s:*", KeyPrefixMailbox, recipient)
}

// idempotencyKey returns the key for a caller-supplied token.
func idempotencyKey(token string) string {
	return KeyPrefixIdempotency + token
}
