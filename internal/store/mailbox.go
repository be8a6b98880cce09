package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dumpkod/sdominanta/internal/metrics"
	"github.com/dumpkod/sdominanta/internal/models"
)

// TTL bounds for envelopes, in seconds.
const (
	MinTTL = 60
	MaxTTL = 86400
)

// scanBatch is the COUNT hint for mailbox scans.
const scanBatch = 100

// ClampTTL forces a requested TTL into [MinTTL, MaxTTL].
func ClampTTL(ttl int) int {
	return min(max(ttl, MinTTL), MaxTTL)
}

// Enqueue stores env in its recipient's mailbox and returns the new key.
// Keys embed a monotonic ULID, so key order is arrival order.
func (s *RedisStore) Enqueue(ctx context.Context, env *models.Envelope) (string, error) {
	if !ValidAgentID(env.To) {
		return "", ErrInvalidRecipient
	}
	defer observeLatency(time.Now())

	env.TTL = ClampTTL(env.TTL)
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	key := mailboxKey(env.To, ulid.Make().String())
	if err := s.client.Set(ctx, key, data, time.Duration(env.TTL)*time.Second).Err(); err != nil {
		return "", fmt.Errorf("enqueue envelope: %w", err)
	}
	return key, nil
}

// Peek counts the live envelopes of recipient without consuming them.
func (s *RedisStore) Peek(ctx context.Context, recipient string) (int, error) {
	if !ValidAgentID(recipient) {
		return 0, ErrInvalidRecipient
	}
	defer observeLatency(time.Now())

	keys, err := s.mailboxKeys(ctx, recipient)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// DrainAll removes and returns every live envelope of recipient, oldest
// first. Each key is consumed with GETDEL, so an envelope is returned by at
// most one of several concurrent drains. Envelopes enqueued while the drain
// runs may be left for the next call.
func (s *RedisStore) DrainAll(ctx context.Context, recipient string) ([]models.MailboxItem, error) {
	if !ValidAgentID(recipient) {
		return nil, ErrInvalidRecipient
	}
	defer observeLatency(time.Now())

	keys, err := s.mailboxKeys(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []models.MailboxItem{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.GetDel(ctx, key)
	}
	// Exec only reports the first failed command. Later commands may have
	// run, so every reply is inspected and whatever was removed is returned
	// alongside the error.
	_, _ = pipe.Exec(ctx)

	var drainErr error
	items := make([]models.MailboxItem, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired or taken since the scan.
			continue
		}
		if err != nil {
			if drainErr == nil {
				drainErr = fmt.Errorf("drain mailbox: %w", err)
			}
			continue
		}
		env, ok := decodeEnvelope(data)
		if !ok {
			continue
		}
		items = append(items, models.MailboxItem{Key: keys[i], Envelope: env})
	}
	return items, drainErr
}

// TakeOne removes and returns the oldest live envelope of recipient.
// It returns ErrMailboxEmpty when there is none.
func (s *RedisStore) TakeOne(ctx context.Context, recipient string) (*models.MailboxItem, error) {
	if !ValidAgentID(recipient) {
		return nil, ErrInvalidRecipient
	}
	defer observeLatency(time.Now())

	keys, err := s.mailboxKeys(ctx, recipient)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		data, err := s.client.GetDel(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Taken by a concurrent consumer or just expired.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("take envelope: %w", err)
		}
		env, ok := decodeEnvelope(data)
		if !ok {
			continue
		}
		return &models.MailboxItem{Key: key, Envelope: env}, nil
	}
	return nil, ErrMailboxEmpty
}

// decodeEnvelope parses a removed envelope. Undecodable values are already
// gone from the store and are only counted.
func decodeEnvelope(data []byte) (models.Envelope, bool) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.EnvelopesCorrupt.Inc()
		return models.Envelope{}, false
	}
	return env, true
}

// mailboxKeys lists the live keys of recipient in lexicographic order.
func (s *RedisStore) mailboxKeys(ctx context.Context, recipient string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, mailboxPattern(recipient), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan mailbox: %w", err)
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}
