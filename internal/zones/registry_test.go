package zones

import (
	"context"
	"errors"
	"testing"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/logging"
	"zonewatch/internal/model"
)

type fakeStore struct {
	byCode map[string]model.Zone
	nextID int64
	calls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byCode: map[string]model.Zone{}}
}

func (f *fakeStore) UpsertZone(_ context.Context, z model.Zone) (model.Zone, error) {
	if old, ok := f.byCode[z.Code]; ok {
		z.ID = old.ID
	} else {
		f.nextID++
		z.ID = f.nextID
	}
	f.byCode[z.Code] = z
	return z, nil
}

func (f *fakeStore) CreateZone(ctx context.Context, z model.Zone) (model.Zone, error) {
	if _, ok := f.byCode[z.Code]; ok {
		return model.Zone{}, &apperr.ConflictError{Msg: "exists"}
	}
	return f.UpsertZone(ctx, z)
}

func (f *fakeStore) GetZoneByID(_ context.Context, id int64) (model.Zone, error) {
	f.calls++
	for _, z := range f.byCode {
		if z.ID == id {
			return z, nil
		}
	}
	return model.Zone{}, apperr.NotFound("zone", "id")
}

func (f *fakeStore) GetZoneByCode(_ context.Context, code string) (model.Zone, error) {
	f.calls++
	if z, ok := f.byCode[code]; ok {
		return z, nil
	}
	return model.Zone{}, apperr.NotFound("zone", code)
}

func (f *fakeStore) ListZones(context.Context) ([]model.Zone, error) {
	out := []model.Zone{}
	for _, z := range f.byCode {
		out = append(out, z)
	}
	return out, nil
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }

func TestResolveByCodeThenID(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, time.Minute, nil, logging.Discard())
	ctx := context.Background()
	if err := reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "Zone A"}, {Code: "B", Name: "Zone B"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	z, err := reg.Resolve(ctx, "A")
	if err != nil || z.Code != "A" {
		t.Fatalf("by code: %+v %v", z, err)
	}
	byID, err := reg.Resolve(ctx, model.ZoneRef("2"))
	if err != nil || byID.Code != "B" {
		t.Fatalf("by id: %+v %v", byID, err)
	}
	_, err = reg.Resolve(ctx, "Z")
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := reg.Resolve(ctx, ""); apperr.Status(err) != 400 {
		t.Fatalf("empty ref should be a validation error: %v", err)
	}
}

func TestNumericCodeWinsOverID(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, 0, nil, logging.Discard())
	ctx := context.Background()
	_ = reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "first"}, {Code: "1", Name: "numeric code"}})
	z, err := reg.Resolve(ctx, "1")
	if err != nil || z.Name != "numeric code" {
		t.Fatalf("code lookup should come first: %+v %v", z, err)
	}
}

func TestResolveUsesCache(t *testing.T) {
	store := newFakeStore()
	obs := &countingObserver{}
	reg := NewRegistry(store, time.Minute, obs, logging.Discard())
	ctx := context.Background()
	_ = reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "Zone A"}})
	for i := 0; i < 3; i++ {
		if _, err := reg.Resolve(ctx, "A"); err != nil {
			t.Fatal(err)
		}
	}
	if store.calls != 1 || obs.hits != 2 || obs.misses != 1 {
		t.Fatalf("calls=%d hits=%d misses=%d", store.calls, obs.hits, obs.misses)
	}
	reg.Invalidate()
	_, _ = reg.Resolve(ctx, "A")
	if store.calls != 2 {
		t.Fatalf("invalidate should force a store read, calls=%d", store.calls)
	}
}

func TestSeedRefreshesCachedZone(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, time.Hour, nil, logging.Discard())
	ctx := context.Background()
	_ = reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "old"}})
	_, _ = reg.Resolve(ctx, "A")
	_ = reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "new"}})
	z, _ := reg.Resolve(ctx, "A")
	if z.Name != "new" {
		t.Fatalf("stale zone after seed: %s", z.Name)
	}
}

func TestReloadAppliesEditedOptima(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, time.Hour, nil, logging.Discard())
	ctx := context.Background()
	old, edited := 18.0, 12.5
	_ = reg.Seed(ctx, []config.ZoneConfig{{Code: "A", Name: "Zone A", OptimalTemperature: &old}})
	if z, _ := reg.Resolve(ctx, "A"); *z.OptimalTemperature != 18 {
		t.Fatalf("seeded optimum: %v", *z.OptimalTemperature)
	}
	if err := reg.Reload(ctx, []config.ZoneConfig{{Code: "A", Name: "Zone A", OptimalTemperature: &edited}}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	z, err := reg.Resolve(ctx, "A")
	if err != nil || z.OptimalTemperature == nil || *z.OptimalTemperature != 12.5 {
		t.Fatalf("edited optimum not applied: %+v %v", z, err)
	}
}

func TestCreateValidatesAndConflicts(t *testing.T) {
	reg := NewRegistry(newFakeStore(), time.Minute, nil, logging.Discard())
	ctx := context.Background()
	if _, err := reg.Create(ctx, model.Zone{Code: "A"}); apperr.Status(err) != 400 {
		t.Fatalf("missing name: %v", err)
	}
	if _, err := reg.Create(ctx, model.Zone{Code: "A", Name: "Zone A"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Create(ctx, model.Zone{Code: "A", Name: "again"}); apperr.Status(err) != 409 {
		t.Fatalf("duplicate: %v", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[int](time.Second, nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	c.Set("k", 7)
	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Fatalf("fresh get: %v %v", v, ok)
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired")
	}
}
