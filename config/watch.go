package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/knadh/koanf/providers/file"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/logger"
)

// TunableUpdater applies runtime settings. *allocation.Engine implements it.
type TunableUpdater interface {
	UpdateConfig(u allocation.ConfigUpdate) (allocation.Tunables, error)
}

// Watch reloads path whenever it changes and pushes the engine tunables to
// target. Other sections need a restart. An invalid file is logged and
// ignored, leaving the previous values in force. Watch returns once ctx is
// done.
func Watch(ctx context.Context, path string, target TunableUpdater, log logger.Logger) error {
	if path == "" {
		return errors.New("watch: no config file")
	}
	log = logger.OrNop(log)
	fp := file.Provider(path)
	err := fp.Watch(func(_ any, err error) {
		if err != nil {
			log.Errorf("config watch: %v", err)
			return
		}
		if err := ApplyTunables(path, target); err != nil {
			log.Warnf("config reload rejected: %v", err)
			return
		}
		log.Infof("config reloaded from %s", path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	<-ctx.Done()
	return fp.Unwatch()
}

// ApplyTunables loads path and applies its engine tunables to target.
func ApplyTunables(path string, target TunableUpdater) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	t := cfg.Engine.Tunables()
	_, err = target.UpdateConfig(allocation.ConfigUpdate{
		AllocationLimitK:     &t.AllocationLimitK,
		RequestExpiryMinutes: &t.RequestExpiryMinutes,
		ProcessingThreshold:  &t.ProcessingThreshold,
	})
	return err
}
