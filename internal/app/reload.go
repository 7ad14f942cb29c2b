package app

import (
	"context"
	"strings"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

// startConfigReload fans published config updates out to the components
// that can re-apply settings live (logging, engine tunables, send rate).
// Sections that need a process restart only get a warning.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}

				for _, s := range sections {
					switch s {
					case "storage", "telegram":
						a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
					}
				}

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				if svcCfg, err := mapServiceConfig(newCfg); err != nil {
					a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				} else {
					a.core.Apply(svcCfg)
				}
				a.disp.SetRate(newCfg.Delivery.RatePerSec)

				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})
}
