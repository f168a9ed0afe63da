// Package seaport maps free-text port names to Seaport records.
package seaport

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
)

// Lookup is the slice of the entity store the resolver reads.
type Lookup interface {
	ListSeaports(ctx context.Context) ([]*models.Seaport, error)
}

// Policy decides what happens when a prefix matches several seaports.
type Policy string

const (
	// PolicyFirstMatch returns the first candidate in iteration order.
	PolicyFirstMatch Policy = "first-match"
	// PolicyFailClosed rejects the name with CodeAmbiguousMatch.
	PolicyFailClosed Policy = "fail-closed"
)

// Resolver matches names case- and accent-insensitively by prefix. An exact
// name match beats any prefix match.
type Resolver struct {
	lookup Lookup
	policy Policy
	logger *slog.Logger
}

type Option func(*Resolver)

func WithAmbiguityPolicy(p Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New constructs a Resolver with the first-match policy unless overridden.
func New(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{lookup: lookup, policy: PolicyFirstMatch, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve searches every seaport in store order.
func (r *Resolver) Resolve(ctx context.Context, name string) (*models.Seaport, error) {
	return r.ResolveWithin(ctx, name, nil)
}

// ResolveWithin searches only allowed, in the order given. An empty allowed
// set searches every seaport.
func (r *Resolver) ResolveWithin(ctx context.Context, name string, allowed []id.SeaportID) (*models.Seaport, error) {
	needle := Fold(name)
	if needle == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "seaport name is required")
	}

	all, err := r.lookup.ListSeaports(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list seaports")
	}
	candidates := restrict(all, allowed)

	var matches []*models.Seaport
	for _, p := range candidates {
		folded := Fold(p.LocationName)
		if folded == needle {
			return p, nil
		}
		if strings.HasPrefix(folded, needle) {
			matches = append(matches, p)
		}
	}

	switch {
	case len(matches) == 0:
		return nil, dErrors.New(dErrors.CodeResolutionFailure, "seaport not found: "+name)
	case len(matches) > 1 && r.policy == PolicyFailClosed:
		return nil, dErrors.New(dErrors.CodeAmbiguousMatch, "seaport name is ambiguous: "+name)
	case len(matches) > 1:
		r.logger.DebugContext(ctx, "ambiguous seaport prefix, taking first",
			"name", name,
			"candidates", len(matches),
			"chosen", matches[0].LocationName,
		)
	}
	return matches[0], nil
}

func restrict(all []*models.Seaport, allowed []id.SeaportID) []*models.Seaport {
	if len(allowed) == 0 {
		return all
	}
	byID := make(map[id.SeaportID]*models.Seaport, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	out := make([]*models.Seaport, 0, len(allowed))
	for _, pid := range allowed {
		if p, ok := byID[pid]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Fold trims, strips diacritics and case-folds s. "  Valparaíso" and
// "VALPARAISO" fold to the same key.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
