package models

import "time"

// Bot status values.
const (
	BotStatusIdle      = "idle"
	BotStatusInMeeting = "in_meeting"
)

// Trigger modes decide what wakes an interactive bot.
const (
	TriggerChatOnly     = "chat_only"
	TriggerNameReaction = "name_reaction"
	TriggerAllReaction  = "all_reaction"
)

// Feature is one configurable bot capability.
type Feature struct {
	Enabled     bool   `json:"enabled"`
	Instruction string `json:"instruction"`
}

// Features groups the per-channel bot capabilities.
type Features struct {
	Reaction Feature `json:"reaction"`
	Chat     Feature `json:"chat"`
	Voice    Feature `json:"voice"`
}

// Bot is a user-owned meeting participant configuration.
type Bot struct {
	UserID               string    `json:"userId"`
	BotID                string    `json:"botId"`
	BotName              string    `json:"botName"`
	IsInteractiveEnabled bool      `json:"isInteractiveEnabled"`
	IsRecordingEnabled   bool      `json:"isRecordingEnabled"`
	TriggerMode          string    `json:"triggerMode,omitempty"`
	Features             *Features `json:"features,omitempty"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}
