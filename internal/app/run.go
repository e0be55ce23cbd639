package app

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.Int("providers", len(a.cfg.Providers)),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("budget-backend", a.cfg.RiskBudgetBackend),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	if a.settlementFD != nil {
		a.settlementFD.Start(a.ctx)
		a.logger.Info("settlement-feed-started",
			zap.String("url", a.cfg.SettlementFeedURL))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
