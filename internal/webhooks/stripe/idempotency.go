package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/wdir-license-backend/pkg/redis"
)

// ClaimState is the outcome of claiming a Stripe event id.
type ClaimState int

const (
	// ClaimAcquired means this delivery owns processing of the event.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another delivery is processing the event right now.
	ClaimInFlight
	// ClaimDone means the event was already processed successfully.
	ClaimDone
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	// processingTTL bounds how long a crashed handler can block redelivery.
	processingTTL = 5 * time.Minute
)

// IdempotencyGuard tracks Stripe event ids through processing -> done so
// redeliveries of a handled event are acknowledged without side effects.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks eventID as processing unless a previous delivery already has.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key, err := g.key(eventID)
	if err != nil {
		return 0, err
	}
	set, err := g.store.SetNX(ctx, key, markerProcessing, processingTTL)
	if err != nil {
		return 0, fmt.Errorf("claim stripe event: %w", err)
	}
	if set {
		return ClaimAcquired, nil
	}

	current, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return ClaimInFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read stripe event claim: %w", err)
	case current == markerDone:
		return ClaimDone, nil
	default:
		return ClaimInFlight, nil
	}
}

// Complete records eventID as processed for the guard's retention window.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.ttl)
}

// Release drops the claim so Stripe's next retry processes the event again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
