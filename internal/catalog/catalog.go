// Package catalog provides the candidate lists offered by pick-from-list steps.
//
// Locations and activities live in the database so admins can extend them;
// machinery, crops and foreman work types are static and carry attributes
// that change which fields a report requires.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/patrickmn/go-cache"
)

// ErrUnknownGroup is returned for a group that does not belong to the catalog kind.
var ErrUnknownGroup = errors.New("unknown catalog group")

// Source is the persistent side of the catalog.
type Source interface {
	ListCatalogItems(ctx context.Context, kind models.CatalogKind, group string) ([]models.CatalogItem, error)
	AddCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
	RemoveCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
	CountCatalogItems(ctx context.Context, kind models.CatalogKind) (int, error)
}

// Opts holds configuration options for a Service.
type Opts struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Option defines a configuration option for a Service.
type Option func(*Opts)

// WithTTL sets how long a loaded list is served from memory.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// Service serves catalog lists with a read-through cache.
type Service struct {
	src      Source
	defaults Defaults
	cache    *cache.Cache
}

// NewService creates a catalog Service over src.
func NewService(src Source, defaults Defaults, opts ...Option) *Service {
	cfg := Opts{TTL: time.Hour, CleanupInterval: 10 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		src:      src,
		defaults: defaults,
		cache:    cache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

// ValidGroup reports whether group belongs to kind.
func ValidGroup(kind models.CatalogKind, group string) bool {
	switch kind {
	case models.KindLocation:
		switch models.LocationGroup(group) {
		case models.GroupFields, models.GroupWarehouse, models.GroupOffice:
			return true
		}
	case models.KindActivity:
		return models.Category(group).IsValid()
	}
	return false
}

// Seed copies default locations and activities into an empty catalog. Kinds
// that already hold items are left untouched.
func (s *Service) Seed(ctx context.Context) error {
	seed := func(kind models.CatalogKind, lists map[string][]string) error {
		n, err := s.src.CountCatalogItems(ctx, kind)
		if err != nil {
			return fmt.Errorf("count %s items: %w", kind, err)
		}
		if n > 0 {
			slog.Debug("Catalog.Seed: kind already populated", "kind", kind, "count", n)
			return nil
		}
		added := 0
		for group, names := range lists {
			for _, name := range names {
				if _, err := s.src.AddCatalogItem(ctx, kind, group, name); err != nil {
					return fmt.Errorf("seed %s %s/%s: %w", kind, group, name, err)
				}
				added++
			}
		}
		slog.Info("Catalog.Seed: seeded defaults", "kind", kind, "count", added)
		return nil
	}

	locations := make(map[string][]string, len(s.defaults.Locations))
	for g, names := range s.defaults.Locations {
		locations[string(g)] = names
	}
	if err := seed(models.KindLocation, locations); err != nil {
		return err
	}
	activities := make(map[string][]string, len(s.defaults.Activities))
	for c, names := range s.defaults.Activities {
		activities[string(c)] = names
	}
	if err := seed(models.KindActivity, activities); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

func cacheKey(kind models.CatalogKind, group string) string {
	return string(kind) + "/" + group
}

// Items returns the items of one kind and group, served from cache when fresh.
func (s *Service) Items(ctx context.Context, kind models.CatalogKind, group string) ([]models.CatalogItem, error) {
	if !ValidGroup(kind, group) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownGroup, kind, group)
	}
	key := cacheKey(kind, group)
	if v, ok := s.cache.Get(key); ok {
		return v.([]models.CatalogItem), nil
	}
	items, err := s.src.ListCatalogItems(ctx, kind, group)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, items, cache.DefaultExpiration)
	return items, nil
}

func candidatesOf(items []models.CatalogItem) []fuzzy.Candidate {
	out := make([]fuzzy.Candidate, len(items))
	for i, it := range items {
		out[i] = fuzzy.Candidate{ID: it.ID, Label: it.Name}
	}
	return out
}

// Locations returns the candidate locations of group.
func (s *Service) Locations(ctx context.Context, group models.LocationGroup) ([]fuzzy.Candidate, error) {
	items, err := s.Items(ctx, models.KindLocation, string(group))
	if err != nil {
		return nil, err
	}
	return candidatesOf(items), nil
}

// Activities returns the candidate activities of a work category.
func (s *Service) Activities(ctx context.Context, cat models.Category) ([]fuzzy.Candidate, error) {
	items, err := s.Items(ctx, models.KindActivity, string(cat))
	if err != nil {
		return nil, err
	}
	return candidatesOf(items), nil
}

func staticCandidates(prefix string, names []string) []fuzzy.Candidate {
	out := make([]fuzzy.Candidate, len(names))
	for i, n := range names {
		out[i] = fuzzy.Candidate{ID: fmt.Sprintf("%s%d", prefix, i+1), Label: n}
	}
	return out
}

// Machinery returns the static machinery list.
func (s *Service) Machinery(context.Context) ([]fuzzy.Candidate, error) {
	names := make([]string, len(s.defaults.Machinery))
	for i, m := range s.defaults.Machinery {
		names[i] = m.Name
	}
	return staticCandidates("m", names), nil
}

// Crops returns the static crop list.
func (s *Service) Crops(context.Context) ([]fuzzy.Candidate, error) {
	names := make([]string, len(s.defaults.Crops))
	for i, c := range s.defaults.Crops {
		names[i] = c.Name
	}
	return staticCandidates("c", names), nil
}

// WorkTypes returns the static foreman work types.
func (s *Service) WorkTypes(context.Context) ([]fuzzy.Candidate, error) {
	return staticCandidates("w", s.defaults.WorkTypes), nil
}

// CropRequiresBags reports whether foreman reports for crop must count bags.
func (s *Service) CropRequiresBags(crop string) bool {
	want := fuzzy.Normalize(crop)
	for _, c := range s.defaults.Crops {
		if fuzzy.Normalize(c.Name) == want {
			return c.RequiresBags
		}
	}
	return false
}

// MachineryCountsTrips reports whether work with the machine records trips.
func (s *Service) MachineryCountsTrips(name string) bool {
	want := fuzzy.Normalize(name)
	for _, m := range s.defaults.Machinery {
		if fuzzy.Normalize(m.Name) == want {
			return m.CountsTrips
		}
	}
	return false
}

// Add inserts name into kind/group and invalidates the cached list. It returns
// false when the name already exists.
func (s *Service) Add(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if !ValidGroup(kind, group) {
		return false, fmt.Errorf("%w: %s/%s", ErrUnknownGroup, kind, group)
	}
	added, err := s.src.AddCatalogItem(ctx, kind, group, name)
	if err != nil {
		return false, err
	}
	s.cache.Delete(cacheKey(kind, group))
	slog.Info("Catalog.Add", "kind", kind, "group", group, "name", name, "added", added)
	return added, nil
}

// Remove deletes name from kind/group and invalidates the cached list. It
// returns false when the name did not exist.
func (s *Service) Remove(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	if !ValidGroup(kind, group) {
		return false, fmt.Errorf("%w: %s/%s", ErrUnknownGroup, kind, group)
	}
	removed, err := s.src.RemoveCatalogItem(ctx, kind, group, name)
	if err != nil {
		return false, err
	}
	s.cache.Delete(cacheKey(kind, group))
	slog.Info("Catalog.Remove", "kind", kind, "group", group, "name", name, "removed", removed)
	return removed, nil
}
