package models

import (
	"database/sql"
	"time"
)

// Match types
const (
	MatchCompetitive = "competitive"
	MatchFriendly    = "friendly"
)

// Participant statuses
const (
	ParticipantActive   = "active"
	ParticipantResolved = "resolved"
)

// Wager payout modes
const (
	WagerAllOrNothing  = "all_or_nothing"
	WagerPartialCredit = "partial_credit"
)

// Leg statuses
const (
	LegPending = "pending"
	LegHit     = "hit"
	LegMissed  = "missed"
	LegVoid    = "void"
)

// Rank is a user's skill bracket: coarse tier, fine level within the tier.
// Pairing requires exact equality on both. MinPoints is the points floor of
// the bracket, used when fabricating bot identities near a target rank.
type Rank struct {
	Tier      int `db:"tier" json:"tier"`
	Level     int `db:"level" json:"level"`
	MinPoints int `db:"min_points" json:"min_points"`
}

// QueueEntry is a user waiting for a match in one league's pool.
// Ephemeral: deleted on pairing, cancellation, disconnect or bot fallback.
type QueueEntry struct {
	ID         int64     `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	League     string    `db:"league" json:"league"`
	RankTier   int       `db:"rank_tier" json:"rank_tier"`
	RankLevel  int       `db:"rank_level" json:"rank_level"`
	Private    bool      `db:"private" json:"private"`
	InviteCode string    `db:"invite_code" json:"invite_code,omitempty"`
	EnqueuedAt time.Time `db:"enqueued_at" json:"enqueued_at"`
}

// Match is a head-to-head pairing. Immutable after creation except Resolved,
// which only ever transitions false -> true.
type Match struct {
	ID        string    `db:"id" json:"id"`
	League    string    `db:"league" json:"league"`
	Type      string    `db:"match_type" json:"type"`
	Resolved  bool      `db:"resolved" json:"resolved"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participant is one user's membership in one match. Balance starts at
// StartingBalance and is only ever mutated through the settlement path.
type Participant struct {
	ID              string    `db:"id" json:"id"`
	MatchID         string    `db:"match_id" json:"match_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Bot             bool      `db:"bot" json:"bot"`
	StartingBalance float64   `db:"starting_balance" json:"starting_balance"`
	Balance         float64   `db:"balance" json:"balance"`
	RankTier        int       `db:"rank_tier" json:"rank_tier"`
	RankLevel       int       `db:"rank_level" json:"rank_level"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Wager is a multi-leg parlay. Stake is debited at creation; Resolved and
// Profit are set exactly once at grading and never change afterwards.
type Wager struct {
	ID            string       `db:"id" json:"id"`
	ParticipantID string       `db:"participant_id" json:"participant_id"`
	Stake         float64      `db:"stake" json:"stake"`
	Type          string       `db:"wager_type" json:"type"`
	Resolved      bool         `db:"resolved" json:"resolved"`
	Profit        float64      `db:"profit" json:"profit"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	ResolvedAt    sql.NullTime `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Leg is one proposition-and-side selection inside a wager. SubjectID
// identifies the underlying subject (e.g. a player); two legs of one wager
// may not share it. Status void excludes the leg from grading.
type Leg struct {
	ID            string `db:"id" json:"id"`
	WagerID       string `db:"wager_id" json:"wager_id"`
	PropositionID string `db:"proposition_id" json:"proposition_id"`
	SubjectID     string `db:"subject_id" json:"subject_id"`
	Choice        string `db:"choice" json:"choice"`
	Status        string `db:"status" json:"status"`
}

// Terminal reports whether the leg has reached a terminal grading status.
func (l Leg) Terminal() bool {
	return l.Status == LegHit || l.Status == LegMissed || l.Status == LegVoid
}

// Proposition is an open pick offered by the upstream stats feed. Sides
// lists the choosable outcomes (usually two, sometimes one).
type Proposition struct {
	ID        string   `db:"id" json:"id"`
	League    string   `db:"league" json:"league"`
	SubjectID string   `db:"subject_id" json:"subject_id"`
	Label     string   `db:"label" json:"label"`
	Sides     []string `json:"sides"`
}

// BotIdentity is a fabricated opponent profile.
type BotIdentity struct {
	UserID      string    `db:"user_id" json:"user_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	AvatarID    string    `db:"avatar_id" json:"avatar_id"`
	RankTier    int       `db:"rank_tier" json:"rank_tier"`
	RankLevel   int       `db:"rank_level" json:"rank_level"`
	RankPoints  int       `db:"rank_points" json:"rank_points"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage is a persisted match-chat message.
type ChatMessage struct {
	ID            string    `db:"id" json:"id"`
	MatchID       string    `db:"match_id" json:"match_id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	Content       string    `db:"content" json:"content"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// BalanceEntry is one row of the per-participant balance ledger. Every debit
// and credit against a participant balance appends exactly one entry.
type BalanceEntry struct {
	ID            int64     `db:"id" json:"id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	EntryType     string    `db:"entry_type" json:"entry_type"`
	Amount        float64   `db:"amount" json:"amount"`
	WagerID       string    `db:"wager_id" json:"wager_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
