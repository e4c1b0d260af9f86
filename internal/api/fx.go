package api

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/jdholdren/selvedge/internal/serverutil"
)

var Module = fx.Module("api",
	fx.Provide(
		NewServer,
	),
	fx.Invoke(registerHooks), // Start the server
)

func registerHooks(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			addr, err := serverutil.Start(s.Server)
			if err != nil {
				return err
			}

			slog.Info("started api server", "addr", addr.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return serverutil.Shutdown(ctx, s.Server)
		},
	})
}
