//go:build no_automation

package main

import (
	"log/slog"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ []*climate.Controller, _ *climate.EventBus, _ *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	logger.Info("automation disabled at build time")
	return &autoStopper{}, nil
}
