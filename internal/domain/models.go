// Package domain defines the persistence models for the companion backend:
// cached knowledge entries, dialog messages, and per-user engagement state.
// These types are mapped with GORM and form the core data layer of the
// application. Derived engagement values (mood, outreach due) are computed
// in engagement.go and never stored.
package domain

import (
	"time"
)

// Message roles. Dialog rows are authored either by the user or by the
// assistant (including scheduler-originated outreach messages).
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CacheEntry is one cached piece of external knowledge (e.g. a cleaned
// encyclopedia extract) keyed by the normalized query text.
//
// Invariant: at most one live entry per key. Writes for an existing key
// replace title/content/expiry atomically via a single-statement upsert.
// An entry is logically dead once ExpiresAt <= now; the janitor removes
// dead rows, but reads must already ignore them.
type CacheEntry struct {
	Key       string    `json:"key"        gorm:"type:varchar(512);primaryKey"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index:idx_cache_expiry"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string { return "cache_entries" }

// DialogMessage is a single utterance in a user's conversation history.
// Rows are append-only and never mutated; retention is purely time-based
// (created_at older than the retention window ⇒ eligible for deletion and
// excluded from reads).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: message owner; part of the composite read index.
//   - ChatID: delivery-channel chat identifier (kept per row so outreach
//     can address the user without a separate lookup).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Content: message text, truncated by the service layer before insert.
//   - CreatedAt: insertion time; second key of the composite index so the
//     windowed read and the age-based prune are both index-supported.
type DialogMessage struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_dialog,priority:1"`
	ChatID    string    `json:"chat_id"    gorm:"type:varchar(64);not null"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_user_dialog,priority:2"`
}

// TableName returns the database table name for DialogMessage.
func (DialogMessage) TableName() string { return "dialog_messages" }

// UserEngagement is the single per-user row tracking interaction recency.
// It is upserted on every inbound or outbound message; the freshest write
// wins. Zero timestamps mean "never happened" (e.g. a user the bot has
// messaged but who has never replied has a zero LastUserMessageAt).
type UserEngagement struct {
	UserID            string    `json:"user_id"              gorm:"type:varchar(64);primaryKey"`
	ChatID            string    `json:"chat_id"              gorm:"type:varchar(64);not null"`
	LastUserMessageAt time.Time `json:"last_message_from_user"`
	LastBotMessageAt  time.Time `json:"last_message_from_bot" gorm:"index:idx_engagement_bot_msg"`
	LastSeenAt        time.Time `json:"last_seen"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserEngagement.
func (UserEngagement) TableName() string { return "user_engagement" }

// Idempotency represents a recorded result of a previously processed inbound
// message, keyed by (user_id, chat_id, key). It lets clients retry a POST
// safely: a replayed key returns the originally produced reply without
// invoking the generation pipeline again. Rows expire after a TTL and are
// removed by the janitor.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_chat_key,priority:1"`
	ChatID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_chat_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_chat_key,priority:3"`
	ReplyID   string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
