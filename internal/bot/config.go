package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	Token string
	// Long polling timeout in seconds
	UpdateTimeout int
	// Time a handler may spend on one update
	HandlerTimeout time.Duration
	Debug          bool
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:  60,
		HandlerTimeout: 30 * time.Second,
	}
}
