package injector

import (
	"time"

	"github.com/google/wire"

	"github.com/orbitsync/orbitsync/internal/config"
	"github.com/orbitsync/orbitsync/internal/core/broadcast"
	"github.com/orbitsync/orbitsync/internal/core/collab"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/room"
	"github.com/orbitsync/orbitsync/internal/core/session"
	"github.com/orbitsync/orbitsync/internal/server"
)

// ProviderSet wires a Config into a runnable App.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	room.NewRegistry,
	ProvideTracker,
	ProvideService,
	ProvideCore,
	ProvideWebSocketGateway,
	ProvideQUICGateway,
	ProvideBroadcaster,
	ProvideSweeper,
	ProvideApp,
)

func ProvideLogger(cfg config.Config) *log.Logger {
	return log.New(log.ParseLevel(cfg.LogLevel))
}

func ProvideTracker(cfg config.Config) *session.Tracker {
	return session.NewTracker(cfg.Simulation.MaxSessionsPerUser)
}

func ProvideService(registry *room.Registry, tracker *session.Tracker, cfg config.Config, logger *log.Logger) *collab.Service {
	return collab.NewService(registry, tracker, collab.Options{
		Constants:    cfg.Constants(),
		RoomCapacity: cfg.Simulation.MaxParticipants,
	}, logger)
}

func ProvideCore(svc *collab.Service, logger *log.Logger) *server.Core {
	return server.NewCore(svc, logger)
}

func ProvideWebSocketGateway(core *server.Core, cfg config.Config, logger *log.Logger) *server.WebSocketGateway {
	return server.NewWebSocketGateway(core, cfg.Server, logger)
}

// ProvideQUICGateway returns nil when the QUIC transport is disabled.
func ProvideQUICGateway(core *server.Core, cfg config.Config, logger *log.Logger) *server.QUICGateway {
	if !cfg.Server.EnableQUIC {
		return nil
	}
	return server.NewQUICGateway(core, cfg.Server, logger)
}

func ProvideBroadcaster(registry *room.Registry, core *server.Core, cfg config.Config, logger *log.Logger) *broadcast.Broadcaster {
	return broadcast.New(registry, core, broadcast.Config{
		Period:  cfg.TickPeriod(),
		DT:      cfg.TickPeriod().Seconds(),
		Workers: cfg.Simulation.TickWorkers,
	}, logger)
}

func ProvideSweeper(registry *room.Registry, cfg config.Config, logger *log.Logger) *broadcast.Sweeper {
	return broadcast.NewSweeper(registry,
		time.Duration(cfg.Simulation.SweepInterval),
		time.Duration(cfg.Simulation.RoomIdleTimeout),
		logger)
}

func ProvideApp(ws *server.WebSocketGateway, quic *server.QUICGateway, broadcaster *broadcast.Broadcaster, sweeper *broadcast.Sweeper, logger *log.Logger) *server.App {
	return server.NewApp(ws, quic, broadcaster, sweeper, logger)
}
