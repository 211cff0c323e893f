package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/models"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrNotInMatch     = errors.New("participant is not in this match")
)

// ErrThrottled is returned when the rate limiter rejects a send. RetryAfter
// tells the client when the channel reopens.
type ErrThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string {
	return "too many messages, slow down"
}

// Store persists admitted messages.
type Store interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
}

// Participants resolves the sender against the match roster.
type Participants interface {
	Participant(ctx context.Context, id string) (*models.Participant, error)
}

type Service struct {
	store        Store
	participants Participants
	limiter      *RateLimiter
	maxLength    int
	log          *zap.Logger
}

func NewService(store Store, participants Participants, limiter *RateLimiter, maxLength int, log *zap.Logger) *Service {
	return &Service{
		store:        store,
		participants: participants,
		limiter:      limiter,
		maxLength:    maxLength,
		log:          log,
	}
}

// Send validates, throttles and persists one chat message. The caller owns
// delivery to the room.
func (s *Service) Send(ctx context.Context, participantID, matchID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len(content) > s.maxLength {
		return nil, ErrMessageTooLong
	}

	p, err := s.participants.Participant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.MatchID != matchID {
		return nil, ErrNotInMatch
	}

	if ok, retryAfter := s.limiter.Check(participantID); !ok {
		metrics.ChatThrottled.Inc()
		return nil, &ErrThrottled{RetryAfter: retryAfter}
	}

	msg := &models.ChatMessage{
		MatchID:       matchID,
		ParticipantID: participantID,
		Content:       content,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.log.Error("chat message persist failed",
			zap.String("match_id", matchID),
			zap.String("participant_id", participantID),
			zap.Error(err))
		return nil, err
	}
	return msg, nil
}
