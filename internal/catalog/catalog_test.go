package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	items []models.CatalogItem
	lists int
}

func (m *memSource) ListCatalogItems(_ context.Context, kind models.CatalogKind, group string) ([]models.CatalogItem, error) {
	m.lists++
	var out []models.CatalogItem
	for _, it := range m.items {
		if it.Kind == kind && it.Group == group {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memSource) AddCatalogItem(_ context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	for _, it := range m.items {
		if it.Kind == kind && it.Group == group && it.Name == name {
			return false, nil
		}
	}
	m.items = append(m.items, models.CatalogItem{ID: fmt.Sprintf("id%d", len(m.items)+1), Kind: kind, Group: group, Name: name})
	return true, nil
}

func (m *memSource) RemoveCatalogItem(_ context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	for i, it := range m.items {
		if it.Kind == kind && it.Group == group && it.Name == name {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memSource) CountCatalogItems(_ context.Context, kind models.CatalogKind) (int, error) {
	n := 0
	for _, it := range m.items {
		if it.Kind == kind {
			n++
		}
	}
	return n, nil
}

func newService(t *testing.T) (*Service, *memSource) {
	t.Helper()
	d, err := LoadDefaults()
	require.NoError(t, err)
	src := &memSource{}
	s := NewService(src, d)
	require.NoError(t, s.Seed(context.Background()))
	return s, src
}

func TestLoadDefaults(t *testing.T) {
	d, err := LoadDefaults()
	require.NoError(t, err)
	assert.NotEmpty(t, d.Locations[models.GroupFields])
	assert.Equal(t, []string{"Warehouse"}, d.Locations[models.GroupWarehouse])
	assert.NotEmpty(t, d.Activities[models.CategoryMachinery])
	assert.NotEmpty(t, d.Machinery)
	assert.NotEmpty(t, d.WorkTypes)
}

func TestParseDefaults_RejectsUnknownGroup(t *testing.T) {
	_, err := ParseDefaults([]byte("locations:\n  moon: [Crater]\n"))
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestSeed_IsIdempotent(t *testing.T) {
	s, src := newService(t)
	before := len(src.items)
	require.NoError(t, s.Seed(context.Background()))
	assert.Equal(t, before, len(src.items))
}

func TestLocations_Cached(t *testing.T) {
	s, src := newService(t)
	ctx := context.Background()

	first, err := s.Locations(ctx, models.GroupFields)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	calls := src.lists

	_, err = s.Locations(ctx, models.GroupFields)
	require.NoError(t, err)
	assert.Equal(t, calls, src.lists, "second read is served from cache")
}

func TestAddRemove_InvalidateCache(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Locations(ctx, models.GroupFields)
	require.NoError(t, err)

	added, err := s.Add(ctx, models.KindLocation, string(models.GroupFields), "  Far Meadow ")
	require.NoError(t, err)
	assert.True(t, added)

	list, err := s.Locations(ctx, models.GroupFields)
	require.NoError(t, err)
	assert.Equal(t, "Far Meadow", list[len(list)-1].Label)

	added, err = s.Add(ctx, models.KindLocation, string(models.GroupFields), "Far Meadow")
	require.NoError(t, err)
	assert.False(t, added, "duplicate names are not added twice")

	removed, err := s.Remove(ctx, models.KindLocation, string(models.GroupFields), "Far Meadow")
	require.NoError(t, err)
	assert.True(t, removed)

	list, err = s.Locations(ctx, models.GroupFields)
	require.NoError(t, err)
	for _, c := range list {
		assert.NotEqual(t, "Far Meadow", c.Label)
	}
}

func TestAdd_UnknownGroup(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Add(context.Background(), models.KindActivity, "sales", "Cold calls")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestAttributes(t *testing.T) {
	s, _ := newService(t)
	assert.True(t, s.CropRequiresBags("Potato"))
	assert.True(t, s.CropRequiresBags("potato"))
	assert.False(t, s.CropRequiresBags("Zucchini"))
	assert.False(t, s.CropRequiresBags("Unknown"))
	assert.True(t, s.MachineryCountsTrips("Truck KamAZ"))
	assert.False(t, s.MachineryCountsTrips("Tractor MTZ-82"))
}

func TestStaticLists(t *testing.T) {
	s, _ := newService(t)
	crops, err := s.Crops(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c1", crops[0].ID)
	assert.Equal(t, "Wheat", crops[0].Label)

	wt, err := s.WorkTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Harvest", wt[0].Label)
}
