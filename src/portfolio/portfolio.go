package portfolio

import (
	"fmt"
	"sort"

	"algoengine/src/asset"
)

// Portfolio groups the assets one run trades. Assets are built lazily
// so constructing the registry never touches gateway configuration.
type Portfolio struct {
	ID     string
	Assets []func() *asset.Asset
}

// Build constructs every asset in the portfolio.
func (p Portfolio) Build() []*asset.Asset {
	assets := make([]*asset.Asset, 0, len(p.Assets))
	for _, build := range p.Assets {
		assets = append(assets, build())
	}
	return assets
}

var registry = map[string]Portfolio{}

// Register adds a portfolio under its id. Portfolios are compiled in;
// there is no dynamic loading.
func Register(p Portfolio) {
	registry[p.ID] = p
}

// ByName returns the registered portfolio with the given id.
func ByName(name string) (Portfolio, error) {
	p, ok := registry[name]
	if !ok {
		return Portfolio{}, fmt.Errorf("portfolio %q is not registered, available: %v", name, Names())
	}
	return p, nil
}

// Names lists the registered portfolio ids, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
