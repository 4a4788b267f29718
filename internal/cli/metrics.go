package cli

import (
	"log/slog"
	"strings"

	"tfletl/internal/config"
	"tfletl/internal/metrics"
	"tfletl/internal/metrics/datadog"
	"tfletl/internal/metrics/prompush"
)

const (
	defaultPushgatewayURL = "http://localhost:9091"
	defaultDatadogAddr    = "127.0.0.1:8125"
)

// setupMetrics installs the configured metrics backend and returns the
// function that flushes it. A backend that fails to start leaves metrics
// disabled.
func setupMetrics(cfg config.Metrics, job string, log *slog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		log.Debug("metrics disabled")
		return func() {}
	case "pushgateway":
		url := cfg.PushgatewayURL
		if url == "" {
			url = defaultPushgatewayURL
		}
		b, err = prompush.NewBackend(job, url)
		log = log.With("backend", "pushgateway", "url", url)
	case "datadog":
		addr := cfg.DatadogAddr
		if addr == "" {
			addr = defaultDatadogAddr
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "tfletl.",
			GlobalTags: []string{"job:" + job},
		})
		log = log.With("backend", "datadog", "addr", addr)
	default:
		log.Warn("unknown metrics backend, metrics disabled", "backend", cfg.Backend)
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend unavailable, metrics disabled", "err", err)
		return func() {}
	}

	metrics.SetBackend(b)
	log.Debug("metrics enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", "err", err)
		}
	}
}
