// Package services – ReplyService
//
// This file implements the inbound-message pipeline: record the user message,
// optionally attach cached external knowledge, assemble a bounded history
// tail, ask the generation collaborator for a reply, and record that reply.
// No collaborator failure escapes this service: generation errors surface to
// the conversation as a fixed fallback string, and history-write failures
// are logged without blocking the reply.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// user/chat identifiers and whether external knowledge was attached.
package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// Generator is the black-box generation collaborator. It may fail for any
// upstream reason (network, quota, timeout); callers must treat a failure as
// "no reply produced".
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []domain.DialogMessage, userText, knowledge string) (string, error)
}

// ReplyService coordinates the dialog store, the knowledge cache, and the
// generation collaborator for the request-handling path.
type ReplyService struct {
	DB        *gorm.DB
	Dialog    *DialogService
	Knowledge *KnowledgeService
	Generator Generator

	// SystemPrompt is the persona instruction passed to every generation.
	SystemPrompt string
	// ContextTail caps how many trailing history messages are included in
	// a generation request.
	ContextTail int
	// MaxPromptRunes rejects oversized inbound messages before any work.
	MaxPromptRunes int
	// FallbackReply is returned verbatim when generation fails.
	FallbackReply string
}

// Answer runs the full pipeline for one inbound user message and returns the
// assistant reply. The returned message is persisted when possible; if the
// history write fails the reply is still returned (best-effort persistence),
// carrying a fresh ID and timestamp.
func (s *ReplyService) Answer(ctx context.Context, userID, chatID, text string) (*domain.DialogMessage, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("chat.id", chatID),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(text) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	// Snapshot the history tail before recording the inbound message. The
	// current message travels to the generator as userText, so it must not
	// also appear as the tail's last turn.
	history := s.historyTail(ctx, userID)

	// Record the user message before generation so the engagement tracker
	// reflects the inbound activity even if generation fails below.
	if _, err := s.Dialog.Append(ctx, userID, chatID, domain.RoleUser, text); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("user message write failed")
	}

	// Attach external knowledge when the message looks like a reference
	// question. Lookup never returns an error; a miss means no context.
	var knowledge string
	if q := ExtractKnowledgeQuery(text); q != "" && s.Knowledge != nil {
		content, hit := s.Knowledge.Lookup(ctx, q)
		knowledge = content
		span.SetAttributes(
			attribute.Bool("knowledge.attached", content != ""),
			attribute.Bool("knowledge.cache_hit", hit),
		)
	}

	reply := s.generate(ctx, history, text, knowledge)

	m, err := s.Dialog.Append(ctx, userID, chatID, domain.RoleAssistant, reply)
	if err != nil {
		// The user still gets their reply; only durability suffered.
		log.Warn().Err(err).Str("user_id", userID).Msg("assistant message write failed")
		m = &domain.DialogMessage{
			ID:        uuid.NewString(),
			UserID:    userID,
			ChatID:    chatID,
			Role:      domain.RoleAssistant,
			Content:   reply,
			CreatedAt: time.Now().UTC(),
		}
	}
	return m, nil
}

// historyTail reads the recent in-retention history and clips it to the
// configured tail. Read failures degrade to an empty history.
func (s *ReplyService) historyTail(ctx context.Context, userID string) []domain.DialogMessage {
	tail := s.ContextTail
	if tail <= 0 {
		tail = 6
	}
	history, err := s.Dialog.Window(ctx, userID, tail)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("history read failed")
		return nil
	}
	return history
}

// generate asks the collaborator for a reply, mapping every failure to the
// fallback string. Raw upstream errors never reach the conversation.
func (s *ReplyService) generate(ctx context.Context, history []domain.DialogMessage, text, knowledge string) string {
	if s.Generator == nil {
		return s.fallback()
	}
	reply, err := s.Generator.Generate(ctx, s.SystemPrompt, history, text, knowledge)
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		return s.fallback()
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return s.fallback()
	}
	return reply
}

func (s *ReplyService) fallback() string {
	if s.FallbackReply != "" {
		return s.FallbackReply
	}
	return "Sorry, I could not come up with an answer right now. Try again in a moment."
}

// Reference-question triggers. The bot's audience writes both Russian and
// English, so both families are recognized. The capture group is the topic
// handed to the knowledge cache.
var knowledgeTriggerREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^что\s+такое\s+(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^кто\s+так(?:ой|ая|ие)\s+(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^расскажи\s+(?:про|о|об)\s+(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^what\s+is\s+(?:a\s+|an\s+|the\s+)?(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^who\s+(?:is|was)\s+(.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)^tell\s+me\s+about\s+(.+?)[?.!]*$`),
}

// ExtractKnowledgeQuery returns the reference topic embedded in a message,
// or "" when the message is not a reference question. Exported for handler
// and scheduler tests.
func ExtractKnowledgeQuery(text string) string {
	t := strings.TrimSpace(text)
	for _, re := range knowledgeTriggerREs {
		if m := re.FindStringSubmatch(t); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
