package models

import "time"

// Supported UI languages.
const (
	LanguageJA = "ja"
	LanguageEN = "en"
)

// User is an account created lazily from identity claims.
type User struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserSettings is the subset of User exposed by the settings endpoints.
type UserSettings struct {
	Language    string `json:"language"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Settings returns the settings view of the user.
func (u *User) Settings() UserSettings {
	return UserSettings{Language: u.Language, Email: u.Email, DisplayName: u.DisplayName}
}
