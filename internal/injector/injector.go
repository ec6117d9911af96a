//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/orbitsync/orbitsync/internal/config"
	"github.com/orbitsync/orbitsync/internal/server"
)

// InitializeApp assembles the full server from a Config.
func InitializeApp(cfg config.Config) *server.App {
	wire.Build(ProviderSet)
	return nil
}
