package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/kapu/chess-rooms-go/internal/room"
)

type AppConfig struct {
	RedisURL string

	// DefaultTimeControl is used when the creator does not choose one:
	// "unlimited" or initial seconds per side.
	DefaultTimeControl string

	// MessageOverrideDir optionally overrides the embedded message
	// catalog.
	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DefaultTimeControl: room.TimeControlUnlimited,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("TIME_CONTROL")); v != "" {
		if v != room.TimeControlUnlimited {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, errors.New("TIME_CONTROL must be \"unlimited\" or a positive number of seconds")
			}
		}
		cfg.DefaultTimeControl = v
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
