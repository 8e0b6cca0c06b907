// Package logging provides the module-scoped logger used throughout this
// repository, following the "one package-level logger, variadic key/value
// pairs" style of datasync/chaindatafetcher/chaindata_fetcher.go's
// `var logger = log.NewModuleLogger(log.ChainDataFetcher)`, backed by
// go.uber.org/zap's SugaredLogger rather than an in-house log15 fork.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once resolveOnce
	base *zap.SugaredLogger
)

type resolveOnce struct {
	sync.Once
}

func root() *zap.SugaredLogger {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		base = l.Sugar()
	})
	return base
}

// Named returns a logger scoped to the given module name, mirroring
// chaindatafetcher's one-logger-per-package convention.
func Named(module string) *zap.SugaredLogger {
	return root().Named(module)
}

// SetForTest installs a logger backed by a no-op core, used by tests that
// don't want production JSON logging noise. Only loggers obtained from Named
// afterwards use it; package-level loggers built earlier keep their core.
func SetForTest() {
	once.Do(func() {})
	base = zap.NewNop().Sugar()
}
