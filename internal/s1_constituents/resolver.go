package s1_constituents

import (
	"context"
	"sort"

	"github.com/wonny/equindex/internal/contracts"
	"github.com/wonny/equindex/pkg/logger"
)

// Config holds the constituent policy
type Config struct {
	MinConstituents int `yaml:"min_constituents"` // groupings below this are never indexed
}

// Resolver maps a (sector, industry) grouping to its member symbols
type Resolver struct {
	store  contracts.GroupingReader
	config Config
	logger *logger.Logger
}

// Resolution is the outcome of resolving one grouping
type Resolution struct {
	Symbols    []string
	SkipReason contracts.SkipReason
}

// NewResolver creates a new constituent resolver
func NewResolver(store contracts.GroupingReader, config Config, log *logger.Logger) *Resolver {
	if config.MinConstituents < 1 {
		config.MinConstituents = 3
	}
	return &Resolver{
		store:  store,
		config: config,
		logger: log.WithComponent("s1_constituents"),
	}
}

// Resolve returns the sorted, de-duplicated symbols whose sector and industry match exactly.
// A storage error is logged and yields an empty result.
func (r *Resolver) Resolve(ctx context.Context, sector, industry string) []string {
	symbols, err := r.store.ListSymbols(ctx, sector, industry)
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"sector":   sector,
			"industry": industry,
		}).Error("Failed to resolve constituents")
		return []string{}
	}

	return normalizeSymbols(symbols)
}

// ResolveGrouping resolves g and applies the minimum-size policy.
// Membership may have shrunk since enumeration.
func (r *Resolver) ResolveGrouping(ctx context.Context, g contracts.Grouping) Resolution {
	symbols := r.Resolve(ctx, g.Sector, g.Industry)
	if len(symbols) < r.config.MinConstituents {
		return Resolution{Symbols: symbols, SkipReason: contracts.SkipTooFewConstituents}
	}
	return Resolution{Symbols: symbols}
}

// ListEligibleGroupings returns groupings with at least MinConstituents members,
// ordered by (sector, industry). The error is returned so a caller can abort a run.
func (r *Resolver) ListEligibleGroupings(ctx context.Context) ([]contracts.Grouping, error) {
	groupings, err := r.store.ListGroupings(ctx, r.config.MinConstituents)
	if err != nil {
		return nil, err
	}

	eligible := make([]contracts.Grouping, 0, len(groupings))
	for _, g := range groupings {
		if g.IsEligible(r.config.MinConstituents) && g.Sector != "" && g.Industry != "" {
			eligible = append(eligible, g)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Sector != eligible[j].Sector {
			return eligible[i].Sector < eligible[j].Sector
		}
		return eligible[i].Industry < eligible[j].Industry
	})
	return eligible, nil
}

// EligibleGroupings is ListEligibleGroupings that logs a storage error and returns an empty list
func (r *Resolver) EligibleGroupings(ctx context.Context) []contracts.Grouping {
	groupings, err := r.ListEligibleGroupings(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list eligible groupings")
		return []contracts.Grouping{}
	}
	return groupings
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
