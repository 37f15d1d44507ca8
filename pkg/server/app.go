package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"CoinDash/internal/scheduler"
	xhttp "CoinDash/pkg/http"
	pkgkafka "CoinDash/pkg/kafka"
	applogger "CoinDash/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	logger     *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	scheduler  *scheduler.Scheduler
}

// New creates a new App around an HTTP server.
func New(logger *applogger.Logger, httpServer *xhttp.Server) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &App{logger: logger, httpServer: httpServer}
}

// SetConsumer attaches a Kafka consumer and the handler it feeds.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// SetScheduler attaches the cache warm-up scheduler.
func (a *App) SetScheduler(s *scheduler.Scheduler) { a.scheduler = s }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts
// down in reverse order.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		go func() {
			if err := a.scheduler.RunNow(ctx); err != nil {
				a.logger.Warn("initial cache warm-up failed", applogger.Error(err))
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// Flush aggregated error logs while the producer is still open.
	a.logger.RemoveCollector()

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
