package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "mailbox:"
	// entryTTL bounds how long unconsumed signaling lingers; a peer that has
	// not polled for this long is not coming back for it.
	entryTTL = 5 * time.Minute
)

// Redis is the Store backed by Redis, for deployments where polling clients
// should survive a relay restart.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis creates a Redis-backed mailbox store.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, logger: logger}
}

func pairKeys(meetingID, from, to string) (offer, answer, candidates string) {
	base := fmt.Sprintf("%s%s:%s:%s", keyPrefix, meetingID, from, to)
	return base + ":offer", base + ":answer", base + ":candidates"
}

// PutOffer stores the offer, replacing any prior pending offer for the pair.
func (r *Redis) PutOffer(ctx context.Context, meetingID, from, to string, sdp json.RawMessage) error {
	offer, _, _ := pairKeys(meetingID, from, to)
	if err := r.client.Set(ctx, offer, []byte(sdp), entryTTL).Err(); err != nil {
		return fmt.Errorf("store offer: %w", err)
	}
	return nil
}

// PutAnswer stores the answer, replacing any prior pending answer for the pair.
func (r *Redis) PutAnswer(ctx context.Context, meetingID, from, to string, sdp json.RawMessage) error {
	_, answer, _ := pairKeys(meetingID, from, to)
	if err := r.client.Set(ctx, answer, []byte(sdp), entryTTL).Err(); err != nil {
		return fmt.Errorf("store answer: %w", err)
	}
	return nil
}

// AppendCandidate queues an ICE candidate behind any already pending.
func (r *Redis) AppendCandidate(ctx context.Context, meetingID, from, to string, candidate json.RawMessage) error {
	_, _, candidates := pairKeys(meetingID, from, to)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, candidates, []byte(candidate))
	pipe.Expire(ctx, candidates, entryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue candidate: %w", err)
	}
	return nil
}

// Consume returns and deletes everything pending for the pair.
func (r *Redis) Consume(ctx context.Context, meetingID, from, to string) (Entry, error) {
	offerKey, answerKey, candidatesKey := pairKeys(meetingID, from, to)

	pipe := r.client.TxPipeline()
	offerCmd := pipe.Get(ctx, offerKey)
	answerCmd := pipe.Get(ctx, answerKey)
	candidatesCmd := pipe.LRange(ctx, candidatesKey, 0, -1)
	pipe.Del(ctx, offerKey, answerKey, candidatesKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Entry{}, fmt.Errorf("consume mailbox: %w", err)
	}

	var entry Entry
	if v, err := offerCmd.Bytes(); err == nil {
		entry.Offer = v
	}
	if v, err := answerCmd.Bytes(); err == nil {
		entry.Answer = v
	}
	for _, c := range candidatesCmd.Val() {
		entry.Candidates = append(entry.Candidates, json.RawMessage(c))
	}
	return entry, nil
}
