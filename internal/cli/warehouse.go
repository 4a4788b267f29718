package cli

import (
	"context"
	"log/slog"

	"tfletl/internal/config"
	"tfletl/internal/warehouse"

	// register every backend; warehouse.kind picks one at runtime.
	_ "tfletl/internal/warehouse/all"
)

// openGateway opens the configured backend. The returned close function is
// safe to defer even when err is non-nil.
func openGateway(ctx context.Context, cfg config.Pipeline, log *slog.Logger) (*warehouse.Gateway, func(), error) {
	be, err := warehouse.Open(ctx, warehouse.ConfigFrom(cfg.Warehouse))
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() {
		if err := be.Close(); err != nil {
			log.Warn("close warehouse", "err", err)
		}
	}
	return warehouse.NewGateway(be, cfg, log), closeFn, nil
}
