package config

import "time"

const (
	// Matching
	DefaultMatchPollInterval = 3 * time.Second

	// Liveness
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultStaleAfter        = 45 * time.Second
	DefaultJanitorInterval   = 15 * time.Second

	// Typing
	TypingIdle = 1 * time.Second

	// Retention
	DefaultMessageRetention = 24 * time.Hour

	// Messages
	MaxMessageLength = 2000

	// Client-side cooldowns
	SearchCooldown = 3 * time.Second
	LeaveCooldown  = 5 * time.Second

	// Tokens
	TokenTTL = 72 * time.Hour
)
