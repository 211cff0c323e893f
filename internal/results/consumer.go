package results

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/wagers"
)

// LegResult is the upstream grading feed's message: one terminal status for
// one leg of one wager.
type LegResult struct {
	LegID   string `json:"leg_id"`
	WagerID string `json:"wager_id"`
	Status  string `json:"status"`
}

// Reader is satisfied by *kafka.Reader.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Writer is satisfied by *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Applier records a terminal leg status, reporting whether it changed
// anything.
type Applier interface {
	ApplyLegStatus(ctx context.Context, legID, status string) (bool, error)
}

// Grader settles a wager once its legs allow it.
type Grader interface {
	Grade(ctx context.Context, wagerID string) error
}

// Consumer drains the leg-results topic, marks legs and triggers grading.
// Only messages that cannot be decoded or fail validation go to the dead
// letter topic; a store outage is transient and the message is retried in
// place instead.
type Consumer struct {
	Log    *zap.Logger
	Reader Reader
	DLQ    Writer
	Ledger Applier
	Engine Grader
}

func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}
		for c.Handle(ctx, m) != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// Handle processes one message. A non-nil return means the store was
// unreachable and the same message must be retried. Split out from Run so a
// test can feed messages without a broker.
func (c *Consumer) Handle(ctx context.Context, m kafka.Message) error {
	var res LegResult
	if err := json.Unmarshal(m.Value, &res); err != nil {
		c.Log.Warn("undecodable leg result", zap.Error(err))
		c.deadLetter(ctx, m, "decode")
		return nil
	}
	if res.LegID == "" || res.WagerID == "" || !terminalStatus(res.Status) {
		c.Log.Warn("malformed leg result",
			zap.String("leg_id", res.LegID),
			zap.String("wager_id", res.WagerID),
			zap.String("status", res.Status))
		c.deadLetter(ctx, m, "malformed")
		return nil
	}

	applied, err := c.Ledger.ApplyLegStatus(ctx, res.LegID, res.Status)
	if err != nil {
		// Transient store failure. The result itself is valid, so it must
		// not be dropped to the dead letter topic.
		c.Log.Warn("leg status apply failed, will retry",
			zap.String("leg_id", res.LegID),
			zap.Error(err))
		return err
	}
	if !applied {
		// Unknown leg id or already terminal. Grading below stays safe
		// either way.
		c.Log.Debug("leg status unchanged", zap.String("leg_id", res.LegID))
	}

	if err := c.Engine.Grade(ctx, res.WagerID); err != nil {
		if errors.Is(err, wagers.ErrNotAllLegsResolved) {
			return nil
		}
		// Retried when the next leg of this wager lands; never dead
		// lettered because the leg status itself was recorded.
		c.Log.Error("grading failed",
			zap.String("wager_id", res.WagerID),
			zap.Error(err))
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, reason string) {
	if c.DLQ == nil {
		return
	}
	out := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
		},
	}
	if err := c.DLQ.WriteMessages(ctx, out); err != nil {
		c.Log.Error("dead letter write failed", zap.Error(err))
	}
}

func terminalStatus(s string) bool {
	switch s {
	case models.LegHit, models.LegMissed, models.LegVoid:
		return true
	}
	return false
}
