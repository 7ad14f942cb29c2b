package app

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

// selfCheckLoop watches the engine's heartbeat and restarts the fire loop
// in place when it goes stale. The task set survives a Stop/Start cycle,
// so no rehydration is needed.
func (a *App) selfCheckLoop(c context.Context) {
	for {
		iv := a.selfCheckInterval()
		sleep := iv
		if sleep <= 0 {
			// Disabled right now; re-check periodically in case a config
			// reload turns it back on.
			sleep = time.Minute
		}
		select {
		case <-c.Done():
			return
		case <-time.After(sleep):
		}
		if iv <= 0 {
			continue
		}

		h := a.core.Health()
		if !h.Running || h.LastTick.IsZero() {
			continue
		}
		stale := time.Since(h.LastTick)
		// The loop parks at most a minute between ticks; anything beyond a
		// few intervals means it is wedged.
		threshold := 3 * iv
		if threshold < 3*time.Minute {
			threshold = 3 * time.Minute
		}
		if stale < threshold {
			continue
		}

		a.log.Error("scheduler loop stale; restarting engine in place",
			logx.Duration("stale", stale),
			logx.Int("tasks", h.Tasks),
		)
		stopCtx, cancel := context.WithTimeout(c, 5*time.Second)
		a.core.Stop(stopCtx)
		cancel()
		a.core.Start(c)
	}
}

func (a *App) selfCheckInterval() time.Duration {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return time.Minute
	}
	raw := strings.TrimSpace(cfg.Scheduler.SelfCheckInterval)
	if raw == "" {
		return time.Minute
	}
	d, err := config.ParseDurationField("scheduler.self_check_interval", raw)
	if err != nil {
		return time.Minute
	}
	return d
}

// startSystemdNotify reports readiness to systemd and keeps the watchdog
// fed while the engine is healthy. Outside systemd both calls are no-ops.
func (a *App) startSystemdNotify() {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil || wd <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		ticker := time.NewTicker(wd / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				// A wedged engine stops the pings so systemd can restart us.
				if h := a.core.Health(); !h.Running {
					continue
				}
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
