package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Shutdown gracefully stops all components in dependency order. The HTTP
// server is drained first so no new orders arrive while the coordinator
// finishes in-flight pipelines.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.shutdownHTTPServer(shutdownCtx)
	a.shutdownCoordinator(shutdownCtx)
	a.shutdownSettlementFeed()

	a.cancel()
	a.wg.Wait()

	a.closeBudgetStore()
	a.closeStorage()

	a.logger.Info("application-stopped")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) {
	err := a.httpServer.Shutdown(ctx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}
}

func (a *App) shutdownCoordinator(ctx context.Context) {
	err := a.coordinator.Shutdown(ctx)
	if err != nil {
		a.logger.Error("coordinator-shutdown-error", zap.Error(err))
	}
}

func (a *App) shutdownSettlementFeed() {
	if a.settlementFD == nil {
		return
	}
	a.settlementFD.Stop()
}

func (a *App) closeBudgetStore() {
	err := a.budget.Close()
	if err != nil {
		a.logger.Error("budget-store-close-error", zap.Error(err))
	}
}

func (a *App) closeStorage() {
	err := a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}
}
