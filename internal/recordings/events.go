package recordings

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Provider webhook event names.
const (
	EventBotDone            = "bot.done"
	EventBotCallEnded       = "bot.call_ended"
	EventBotFatal           = "bot.fatal"
	EventBotInCallRecording = "bot.in_call_recording"
	EventBotTranscription   = "bot.transcription"
	EventBotReaction        = "bot.reaction"
	EventBotChatMessage     = "bot.chat_message"
)

// envelope is the outer shape of every delivery.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type botRef struct {
	ID string `json:"id"`
}

type participant struct {
	Name string `json:"name"`
}

// WebhookEvent is one decoded delivery. The concrete types below are the only implementations.
type WebhookEvent interface {
	EventName() string
	RecallBotID() string
}

// StatusEvent covers lifecycle notifications that are only logged.
type StatusEvent struct {
	Name    string `json:"-"`
	Bot     botRef `json:"bot"`
	SubCode string `json:"sub_code"`
}

// TranscriptWord is one recognized word.
type TranscriptWord struct {
	Text string `json:"text"`
}

// TranscriptionEvent carries a transcript fragment.
type TranscriptionEvent struct {
	Bot        botRef `json:"bot"`
	Transcript *struct {
		Speaker  string           `json:"speaker"`
		Words    []TranscriptWord `json:"words"`
		IsFinal  *bool            `json:"is_final"`
		Language string           `json:"language"`
	} `json:"transcript"`
}

// ReactionEvent carries an emoji reaction by a participant.
type ReactionEvent struct {
	Bot         botRef      `json:"bot"`
	Participant participant `json:"participant"`
	Reaction    string      `json:"reaction"`
}

// ChatMessageEvent carries a chat line by a participant.
type ChatMessageEvent struct {
	Bot         botRef      `json:"bot"`
	Participant participant `json:"participant"`
	Message     string      `json:"message"`
}

// DoneEvent reports that the provider bot finished and its media can be fetched.
type DoneEvent struct {
	Bot        botRef          `json:"bot"`
	RawMeeting json.RawMessage `json:"meeting_url"`
	VideoURL   string          `json:"video_url"`
	Duration   float64         `json:"duration"`
}

// UnknownEvent is any event this service does not handle.
type UnknownEvent struct {
	Name string
}

func (e *StatusEvent) EventName() string   { return e.Name }
func (e *StatusEvent) RecallBotID() string { return e.Bot.ID }

func (e *TranscriptionEvent) EventName() string   { return EventBotTranscription }
func (e *TranscriptionEvent) RecallBotID() string { return e.Bot.ID }

func (e *ReactionEvent) EventName() string   { return EventBotReaction }
func (e *ReactionEvent) RecallBotID() string { return e.Bot.ID }

func (e *ChatMessageEvent) EventName() string   { return EventBotChatMessage }
func (e *ChatMessageEvent) RecallBotID() string { return e.Bot.ID }

func (e *DoneEvent) EventName() string   { return EventBotDone }
func (e *DoneEvent) RecallBotID() string { return e.Bot.ID }

func (e *UnknownEvent) EventName() string   { return e.Name }
func (e *UnknownEvent) RecallBotID() string { return "" }

// Text joins the transcript words with single spaces.
func (e *TranscriptionEvent) Text() string {
	if e.Transcript == nil {
		return ""
	}
	words := make([]string, 0, len(e.Transcript.Words))
	for _, w := range e.Transcript.Words {
		words = append(words, w.Text)
	}
	return strings.Join(words, " ")
}

// MeetingURL returns meeting_url when the provider sent it as a plain string.
func (e *DoneEvent) MeetingURL() string {
	var s string
	if len(e.RawMeeting) == 0 || json.Unmarshal(e.RawMeeting, &s) != nil {
		return ""
	}
	return s
}

// DurationSeconds returns the call duration rounded to whole seconds.
func (e *DoneEvent) DurationSeconds() int {
	return int(math.Round(e.Duration))
}

// ParseWebhookEvent decodes a verified delivery body into its concrete event type.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var ev WebhookEvent
	switch env.Event {
	case EventBotCallEnded, EventBotFatal, EventBotInCallRecording:
		ev = &StatusEvent{Name: env.Event}
	case EventBotTranscription:
		ev = &TranscriptionEvent{}
	case EventBotReaction:
		ev = &ReactionEvent{}
	case EventBotChatMessage:
		ev = &ChatMessageEvent{}
	case EventBotDone:
		ev = &DoneEvent{}
	default:
		return &UnknownEvent{Name: env.Event}, nil
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", env.Event, err)
		}
	}
	return ev, nil
}
