// Package zones resolves zone references for the engine and the API and
// keeps the storage_zones table seeded from configuration.
package zones

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/config"
	"zonewatch/internal/model"
)

// Store is the subset of the datastore the registry needs.
type Store interface {
	UpsertZone(ctx context.Context, zone model.Zone) (model.Zone, error)
	CreateZone(ctx context.Context, zone model.Zone) (model.Zone, error)
	GetZoneByID(ctx context.Context, id int64) (model.Zone, error)
	GetZoneByCode(ctx context.Context, code string) (model.Zone, error)
	ListZones(ctx context.Context) ([]model.Zone, error)
}

type Registry struct {
	store  Store
	cache  *Cache[model.Zone]
	logger *slog.Logger
}

func NewRegistry(store Store, ttl time.Duration, obs Observer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, cache: NewCache[model.Zone](ttl, obs), logger: logger}
}

// Resolve looks a reference up by zone code first and falls back to the
// numeric id when the reference parses as one.
func (r *Registry) Resolve(ctx context.Context, ref model.ZoneRef) (model.Zone, error) {
	key := strings.TrimSpace(string(ref))
	if key == "" {
		return model.Zone{}, apperr.Validation("zone_id", "is required")
	}
	if z, ok := r.cache.Get("code:" + key); ok {
		return z, nil
	}
	z, err := r.store.GetZoneByCode(ctx, key)
	if err == nil {
		r.remember(z)
		return z, nil
	}
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		return model.Zone{}, err
	}
	id, ok := ref.ID()
	if !ok {
		return model.Zone{}, err
	}
	return r.ByID(ctx, id)
}

func (r *Registry) ByID(ctx context.Context, id int64) (model.Zone, error) {
	idKey := "id:" + strconv.FormatInt(id, 10)
	if z, ok := r.cache.Get(idKey); ok {
		return z, nil
	}
	z, err := r.store.GetZoneByID(ctx, id)
	if err != nil {
		return model.Zone{}, err
	}
	r.remember(z)
	return z, nil
}

func (r *Registry) List(ctx context.Context) ([]model.Zone, error) {
	return r.store.ListZones(ctx)
}

// Create registers a new zone. Existing codes are a conflict.
func (r *Registry) Create(ctx context.Context, z model.Zone) (model.Zone, error) {
	if err := validateZone(z); err != nil {
		return model.Zone{}, err
	}
	created, err := r.store.CreateZone(ctx, z)
	if err != nil {
		return model.Zone{}, err
	}
	r.forget(created)
	return created, nil
}

// Seed upserts the configured zones so they exist before readings arrive.
func (r *Registry) Seed(ctx context.Context, zones []config.ZoneConfig) error {
	for _, zc := range zones {
		z, err := r.store.UpsertZone(ctx, model.Zone{
			Code:               zc.Code,
			Name:               zc.Name,
			CapacityKg:         zc.CapacityKg,
			OptimalTemperature: zc.OptimalTemperature,
			OptimalHumidity:    zc.OptimalHumidity,
			ZoneType:           zc.ZoneType,
		})
		if err != nil {
			return err
		}
		r.forget(z)
		r.logger.Debug("zone seeded", "zone", z.Code, "id", z.ID)
	}
	if len(zones) > 0 {
		r.logger.Info("zones seeded", "count", len(zones))
	}
	return nil
}

// Invalidate drops every cached zone, e.g. after a config reload.
func (r *Registry) Invalidate() {
	r.cache.Purge()
}

// Reload applies an edited zones list: configured zones are upserted again
// and the cache is dropped so new optimal values apply to the next reading.
func (r *Registry) Reload(ctx context.Context, zones []config.ZoneConfig) error {
	r.Invalidate()
	return r.Seed(ctx, zones)
}

func (r *Registry) remember(z model.Zone) {
	r.cache.Set("code:"+z.Code, z)
	r.cache.Set("id:"+strconv.FormatInt(z.ID, 10), z)
}

func (r *Registry) forget(z model.Zone) {
	r.cache.Delete("code:"+z.Code, "id:"+strconv.FormatInt(z.ID, 10))
}

func validateZone(z model.Zone) error {
	if strings.TrimSpace(z.Code) == "" {
		return apperr.Validation("zone_code", "is required")
	}
	if strings.TrimSpace(z.Name) == "" {
		return apperr.Validation("zone_name", "is required")
	}
	if z.CapacityKg < 0 {
		return apperr.Validation("capacity_kg", "must be >= 0")
	}
	return nil
}
