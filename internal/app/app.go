package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/engine"
	"github.com/mselser95/dex-router/internal/risk"
	"github.com/mselser95/dex-router/internal/settlement"
	"github.com/mselser95/dex-router/internal/storage"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/healthprobe"
	"github.com/mselser95/dex-router/pkg/httpserver"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	coordinator   *engine.Coordinator
	breakers      *circuitbreaker.Registry
	settlementFD  *settlement.Feed
	budget        risk.BudgetStore
	storage       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Coordinator exposes the execution coordinator for one-shot commands that
// drive an order without the HTTP surface.
func (a *App) Coordinator() *engine.Coordinator {
	return a.coordinator
}
