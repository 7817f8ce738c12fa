package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authd/internal/app"
	"authd/internal/config"
	"authd/internal/lib/handlers/slogpretty"
	"authd/internal/lib/sl"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)
	logger.Info("starting jwtd server", slog.String("address", cfg.HTTP.Address))

	application := app.NewJWT(logger, cfg)
	go application.HTTPSrv.MustRun()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, logger, application, cfg.Auth.SweepInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopSweep()
	application.HTTPSrv.Stop()

	logger.Info("shutting down jwtd server")
}

// runSweeper drops expired refresh tokens on a fixed interval until the
// context is cancelled.
func runSweeper(ctx context.Context, logger *slog.Logger, application *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := application.Sweep(ctx)
			if err != nil {
				logger.Error("sweep failed", sl.Err(err))
				continue
			}
			if removed > 0 {
				logger.Info("sweep completed", slog.Int64("removed", removed))
			}
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		panic("unknown environment: " + env)
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
