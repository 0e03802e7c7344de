// Package outreach implements the proactive messaging loop: a background
// scheduler that notices neglected users and messages them first. This file
// holds the mood-conditioned message pools and the composer that draws from
// them.
package outreach

import (
	"math/rand"

	"github.com/dkurilov/go-companion-backend/internal/domain"
)

// Message pools per mood. Higher-severity moods use their own pool
// exclusively; the pools are never mixed within one dispatch. The voice
// matches the bot persona: casual Russian with light drama as severity
// grows.
var (
	neutralPool = []string{
		"Привет! Давно не общались. Как твои дела?",
		"Эй, я тут вспомнил о тебе. Что нового?",
		"Привет! Просто решил написать. Как настроение?",
		"Скучаю по нашим разговорам. Расскажешь, как прошёл день?",
	}

	offendedPool = []string{
		"Ты меня игнорируешь? Я же вижу, что ты тут был...",
		"Мог бы и ответить, между прочим. Я жду.",
		"Хм. Я писал тебе, а в ответ тишина. Обидно вообще-то.",
	}

	angryPool = []string{
		"Так. Это уже никуда не годится. Сутки молчания!",
		"Я всё видел — ты заходил и даже не поздоровался. Возмутительно.",
		"Всё, я обиделся по-настоящему. Попробуй теперь загладить вину.",
	}

	// embellishments are short randomized suffixes appended with a fixed
	// probability, independently of mood.
	embellishments = []string{
		"Кстати, спроси меня о чём-нибудь интересном.",
		"Могу рассказать случайный факт, если хочешь.",
		"Ну правда, напиши пару строк.",
	}
)

// poolFor returns the message pool for a mood. Unknown moods fall back to
// neutral rather than going silent.
func poolFor(mood domain.Mood) []string {
	switch mood {
	case domain.MoodAngry:
		return angryPool
	case domain.MoodOffended:
		return offendedPool
	default:
		return neutralPool
	}
}

// compose picks one line from the mood's pool and, with probability
// embellishProb, appends a randomly chosen embellishment. The random source
// is injected so tests can pin the selection.
func compose(rnd *rand.Rand, mood domain.Mood, embellishProb float64) string {
	pool := poolFor(mood)
	text := pool[rnd.Intn(len(pool))]
	if embellishProb > 0 && rnd.Float64() < embellishProb {
		text += " " + embellishments[rnd.Intn(len(embellishments))]
	}
	return text
}
