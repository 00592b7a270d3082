package handshake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/metrics"
)

const (
	DefaultPollInterval = time.Second
	DefaultDeadline     = 120 * time.Second
)

var ErrPinTimeout = errors.New("timed out waiting for PIN")

// Store is the shared medium between the process publishing a PIN and the one
// waiting for it. Take must return the value and remove it atomically.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	PollInterval time.Duration
	Deadline     time.Duration
}

// Relay is a poll-based rendezvous keyed by transaction id.
type Relay struct {
	store Store
	cfg   Config
	log   logger.Logger
}

func NewRelay(store Store, cfg Config, log logger.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	return &Relay{store: store, cfg: cfg, log: log}
}

func Key(transactionID int64) string {
	return "transaction:" + strconv.FormatInt(transactionID, 10) + ":pin"
}

// Publish stores secret for the transaction, replacing any unconsumed value.
// The entry expires after the relay deadline.
func (r *Relay) Publish(ctx context.Context, transactionID int64, secret string) error {
	if err := r.store.Put(ctx, Key(transactionID), secret, r.cfg.Deadline); err != nil {
		return fmt.Errorf("publish pin for transaction %d: %w", transactionID, err)
	}
	return nil
}

// Reset drops a stale value left over from an earlier run of the same
// transaction. Call it before announcing that a PIN is wanted.
func (r *Relay) Reset(ctx context.Context, transactionID int64) error {
	if err := r.store.Delete(ctx, Key(transactionID)); err != nil {
		return fmt.Errorf("reset pin for transaction %d: %w", transactionID, err)
	}
	return nil
}

// Await polls the store until a secret appears, the relay deadline passes
// (ErrPinTimeout) or ctx ends. onTick, if set, runs after every empty poll.
// Store errors are logged and polling continues.
func (r *Relay) Await(ctx context.Context, transactionID int64, onTick func(context.Context)) (string, error) {
	key := Key(transactionID)
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Deadline)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.log.Info("Waiting for PIN",
		logger.Int64Field("transaction_id", transactionID),
		logger.DurationField("deadline", r.cfg.Deadline))

	for {
		secret, ok, err := r.store.Take(waitCtx, key)
		switch {
		case err != nil && waitCtx.Err() == nil:
			r.log.Warn("PIN store poll failed",
				logger.Int64Field("transaction_id", transactionID),
				logger.ErrorField("error", err))
		case ok:
			metrics.PinWaitSeconds.WithLabelValues("received").Observe(time.Since(start).Seconds())
			r.log.Info("PIN received", logger.Int64Field("transaction_id", transactionID))
			return secret, nil
		}

		if onTick != nil && waitCtx.Err() == nil {
			onTick(waitCtx)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				metrics.PinWaitSeconds.WithLabelValues("cancelled").Observe(time.Since(start).Seconds())
				return "", ctx.Err()
			}
			metrics.PinWaitSeconds.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
			return "", fmt.Errorf("%w: transaction %d after %s", ErrPinTimeout, transactionID, r.cfg.Deadline)
		case <-ticker.C:
		}
	}
}
