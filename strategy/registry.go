package strategy

import (
	"fmt"
	"sort"

	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/pkg/clierr"
)

// Factory builds a strategy for a named service from its configuration.
type Factory func(service string, cfg config.ServiceConfig, deps Deps) Strategy

var factories = map[string]Factory{
	"northline":  NewNorthline,
	"crestfund":  NewCrestfund,
	"meridian":   NewMeridian,
	"harborview": NewHarborview,
	"atlaspay":   NewAtlaspay,
}

// Register adds a strategy factory under an identifier. Registering an
// existing identifier replaces it; tests use this to install fakes.
func Register(name string, f Factory) {
	factories[name] = f
}

// Build resolves the strategy identifier from a service's configuration.
func Build(service string, cfg config.ServiceConfig, deps Deps) (Strategy, error) {
	f, ok := factories[cfg.Strategy]
	if !ok {
		return nil, clierr.New(clierr.Configuration,
			fmt.Sprintf("unknown strategy %q for service %s (known: %v)", cfg.Strategy, service, Known()), nil)
	}
	return f(service, cfg, deps), nil
}

// Known returns the registered strategy identifiers, sorted.
func Known() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
