package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the reminder scheduling engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - grace_window: "5m"
//   - default_timezone: "Europe/Moscow"
//   - self_check_interval: "1m"
type SchedulerConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// GraceWindow bounds how stale a due firing may be and still be delivered.
	GraceWindow string `json:"grace_window,omitempty"`

	// DefaultTimezone is the IANA zone used for users who never set one.
	DefaultTimezone string `json:"default_timezone,omitempty"`

	// SelfCheckInterval controls how often the app verifies the engine loop is alive.
	// Use "0s" to disable the self-check.
	SelfCheckInterval string `json:"self_check_interval,omitempty"`
}

// DeliveryConfig controls the outbound send pipeline.
type DeliveryConfig struct {
	// RatePerSec caps outbound Telegram sends globally. 0 means the default (25/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./remindbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate performs semantic checks beyond strict decoding. It is installed as
// the ConfigManager validator so a bad edit never reaches subscribers.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers: must be >= 0")
	}
	if c.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size: must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.grace_window", c.Scheduler.GraceWindow); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.self_check_interval", c.Scheduler.SelfCheckInterval); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Scheduler.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.default_timezone: unknown zone %q", tz)
		}
	}
	if c.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec: must be >= 0")
	}
	switch strings.TrimSpace(c.Storage.Driver) {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (want file or sqlite)", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
