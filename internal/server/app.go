package server

import (
	"context"
	"errors"

	"github.com/orbitsync/orbitsync/internal/core/broadcast"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
)

// App ties the gateways, the tick loop and the idle sweeper into one
// lifecycle.
type App struct {
	ws          *WebSocketGateway
	quic        *QUICGateway // nil when disabled
	broadcaster *broadcast.Broadcaster
	sweeper     *broadcast.Sweeper
	logger      log.Log
}

func NewApp(ws *WebSocketGateway, quic *QUICGateway, broadcaster *broadcast.Broadcaster, sweeper *broadcast.Sweeper, logger log.Log) *App {
	return &App{
		ws:          ws,
		quic:        quic,
		broadcaster: broadcaster,
		sweeper:     sweeper,
		logger:      logger,
	}
}

// Start brings every component up, tearing down again if any of them fails.
func (a *App) Start() error {
	if err := a.ws.Start(); err != nil {
		return err
	}
	if a.quic != nil {
		if err := a.quic.Start(); err != nil {
			_ = a.ws.Stop(context.Background())
			return err
		}
	}
	if err := a.broadcaster.Start(); err != nil {
		a.stopGateways(context.Background())
		return err
	}
	if err := a.sweeper.Start(); err != nil {
		_ = a.broadcaster.Stop()
		a.stopGateways(context.Background())
		return err
	}
	a.logger.Info("server started")
	return nil
}

// Stop shuts everything down in reverse start order: loops first so no tick
// runs against a closing gateway.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.sweeper.Stop(); err != nil && !errors.Is(err, broadcast.ErrNotRunning) {
		errs = append(errs, err)
	}
	if err := a.broadcaster.Stop(); err != nil && !errors.Is(err, broadcast.ErrNotRunning) {
		errs = append(errs, err)
	}
	a.stopGateways(ctx)
	a.logger.Info("server stopped")
	return errors.Join(errs...)
}

func (a *App) stopGateways(ctx context.Context) {
	if a.quic != nil {
		_ = a.quic.Stop()
	}
	_ = a.ws.Stop(ctx)
}
