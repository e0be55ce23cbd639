package provider

import (
	"fmt"
	"time"

	"github.com/mselser95/dex-router/pkg/config"
	"go.uber.org/zap"
)

// Build constructs adapters for the configured providers, preserving the
// configured priority order. Unknown provider names are an error: adding a
// provider means adding a concrete adapter, not runtime type inspection.
func Build(providers []config.ProviderConfig, quoteValidity time.Duration, logger *zap.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(providers))

	for _, pc := range providers {
		switch pc.Name {
		case "zeroex":
			adapters = append(adapters, NewZeroEx(pc, quoteValidity, logger))
		case "oneinch":
			adapters = append(adapters, NewOneInch(pc, quoteValidity, logger))
		case "paraswap":
			adapters = append(adapters, NewParaswap(pc, quoteValidity, logger))
		default:
			return nil, fmt.Errorf("unknown provider %q", pc.Name)
		}
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	return adapters, nil
}
