package main

import (
	"time"

	oauth "github.com/haileyok/oauth-pkce-golang"
)

type StoredSession struct {
	ID        string `gorm:"primaryKey"`
	Data      string
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

type homeData struct {
	User               *oauth.User
	TokenPrefix        string
	ExpiresAt          time.Time
	Claims             *oauth.TokenClaims
	Organizations      string
	OrganizationsError string
}

type errorData struct {
	Title          string
	Message        string
	Classification string
}

type popupData struct {
	Ok             bool
	Classification string
	Message        string
	// milliseconds before the manual close button is shown
	FallbackDelay int
}
