package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/routes"
	"github.com/kuro6061/nexum/common/bootstrap"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
	"github.com/kuro6061/nexum/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, blob store, telemetry)
	components, err := bootstrap.Setup(ctx, "nexum-server",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate()
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap nexum-server: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize the engine container (repositories, registry, services)
	engine, err := container.NewContainer(ctx, components)
	if err != nil {
		components.Logger.Error("Failed to initialize engine container", "error", err)
		os.Exit(1)
	}

	e := setupEcho(components.Logger)
	routes.Register(e, engine)

	// The reaper runs for the life of the server and stops on shutdown.
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go func() {
		if err := engine.Reaper.Start(reaperCtx); err != nil && !errors.Is(err, context.Canceled) {
			components.Logger.Error("reaper stopped", "error", err)
		}
	}()

	srv := server.New("nexum-server", components.Config.Service.Port, e, components.Logger)
	srv.OnShutdown(func(context.Context) error {
		stopReaper()
		return nil
	})

	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with recovery, request IDs and
// request logging through the structured logger.
func setupEcho(log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			log.Info("request", args...)
			return nil
		},
	}))

	return e
}
