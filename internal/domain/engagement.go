// Engagement state derivation.
//
// Mood and outreach-due are pure functions of the stored timestamps and the
// current clock. Keeping them out of storage means thresholds can change by
// configuration without a data migration, and every reader always sees a
// value consistent with "now" rather than with the last write.
package domain

import "time"

// Mood classifies how the user is assumed to feel about being left without
// replies. It gates which pool of proactive messages the scheduler draws from.
type Mood string

// Mood values, in increasing order of severity. The pools are mutually
// exclusive: a user is exactly one of these at any instant.
const (
	MoodNeutral  Mood = "neutral"
	MoodOffended Mood = "offended"
	MoodAngry    Mood = "angry"
)

// EngagementThresholds holds the tunables for mood derivation. All values
// come from configuration; zero values are not meaningful here and are
// rejected at config validation time.
type EngagementThresholds struct {
	// Offended is the silence duration after which a recently-seen user is
	// considered offended.
	Offended time.Duration
	// Angry is the silence duration after which a recently-seen user is
	// considered angry. Must be greater than Offended.
	Angry time.Duration
	// SeenWindow bounds how recently the user must have been observed for
	// the offended/angry escalation to apply at all. A user who disappears
	// entirely stays neutral: silence only reads as a snub while the user
	// is demonstrably around.
	SeenWindow time.Duration
}

// MoodAt derives the user's mood at the given instant.
//
// The two-condition formula (elapsed-reply gate AND recently-seen gate) is
// deliberate: both must hold for escalation, so a user with no presence
// signal inside SeenWindow is neutral no matter how long they have been
// silent. A user who never sent a message at all is always neutral.
func (u UserEngagement) MoodAt(now time.Time, th EngagementThresholds) Mood {
	if u.LastUserMessageAt.IsZero() {
		return MoodNeutral
	}
	sinceReply := now.Sub(u.LastUserMessageAt)
	sinceSeen := now.Sub(u.LastSeenAt)
	if u.LastSeenAt.IsZero() || sinceSeen >= th.SeenWindow {
		return MoodNeutral
	}
	switch {
	case sinceReply > th.Angry:
		return MoodAngry
	case sinceReply > th.Offended:
		return MoodOffended
	default:
		return MoodNeutral
	}
}

// DueForOutreachAt reports whether the bot has been silent toward this user
// for longer than the outreach interval. Only the bot-side timestamp gates
// this: a user who never spoke can still be due. A zero LastBotMessageAt
// (row created by a presence signal before any message) counts as overdue.
func (u UserEngagement) DueForOutreachAt(now time.Time, interval time.Duration) bool {
	if u.LastBotMessageAt.IsZero() {
		return true
	}
	return now.Sub(u.LastBotMessageAt) > interval
}
