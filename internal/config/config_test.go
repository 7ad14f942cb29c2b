package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
scheduler:
  workers: 4
  grace_window: "2m"
  default_timezone: "Europe/Moscow"
delivery:
  rate_per_sec: 10
storage:
  driver: file
  path: ./data/store
`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.PollTimeout != "15s" {
		t.Fatalf("telegram section: %+v", cfg.Telegram)
	}
	if cfg.Scheduler.Workers != 4 || cfg.Scheduler.GraceWindow != "2m" {
		t.Fatalf("scheduler section: %+v", cfg.Scheduler)
	}
	if cfg.Delivery.RatePerSec != 10 {
		t.Fatalf("delivery section: %+v", cfg.Delivery)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "./data/store" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"123:abc"}}`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  tokne_typo: "oops"
`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"a"}}{"extra":1}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "123:abc"}}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "  " }, "telegram.token"},
		{"bad poll timeout", func(c *Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{"negative workers", func(c *Config) { c.Scheduler.Workers = -1 }, "scheduler.workers"},
		{"negative queue", func(c *Config) { c.Scheduler.QueueSize = -1 }, "scheduler.queue_size"},
		{"bad grace window", func(c *Config) { c.Scheduler.GraceWindow = "5 minutes" }, "scheduler.grace_window"},
		{"negative grace window", func(c *Config) { c.Scheduler.GraceWindow = "-5m" }, "scheduler.grace_window"},
		{"unknown zone", func(c *Config) { c.Scheduler.DefaultTimezone = "Atlantis/Lost" }, "scheduler.default_timezone"},
		{"negative rate", func(c *Config) { c.Delivery.RatePerSec = -1 }, "delivery.rate_per_sec"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"bad busy timeout", func(c *Config) { c.Storage.BusyTimeout = "5 sec" }, "storage.busy_timeout"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not name %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
	if _, err := ParseDurationField("x", "ten"); err == nil {
		t.Fatal("garbage accepted")
	}

	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "3s", 7*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("explicit: got %v, %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "old-token"}}

	sections, _ := SummarizeConfigChange(oldCfg, oldCfg)
	if len(sections) != 0 {
		t.Fatalf("identical configs reported sections: %v", sections)
	}

	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "new-token"},
		Scheduler: SchedulerConfig{Workers: 8},
		Delivery:  DeliveryConfig{RatePerSec: 5},
	}
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"delivery", "scheduler", "telegram"}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	for i := range want {
		if sections[i] != want[i] {
			t.Fatalf("sections = %v, want %v", sections, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Telegram: TelegramConfig{Token: "a"}}
	second := &Config{Telegram: TelegramConfig{Token: "b"}}
	m.publish(first)
	// Full buffer: the oldest update is dropped in favor of the newest.
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("got %+v, want the newest config", got)
		}
	default:
		t.Fatal("nothing published")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	// Double unsubscribe is harmless.
	m.Unsubscribe(ch)
}
