package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/storage/postgres"
)

// Service resolves settings with the ownership -> system-wide -> default
// fallback chain and keeps the redis cache coherent on writes.
//
// Reads are advisory: a failed lookup logs and falls back rather than
// failing the caller's request.
type Service struct {
	store   *Store
	cache   *postgres.RedisClient
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a settings service. cache and metrics may be nil.
func NewService(store *Store, cache *postgres.RedisClient, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve returns the effective setting row for (key, ownershipID):
// the ownership-specific row if present, else the system-wide row, else
// nil.
func (s *Service) Resolve(ctx context.Context, key string, ownershipID int64) (*SystemSetting, error) {
	if setting := s.lookup(ctx, &ownershipID, key); setting != nil {
		return setting, nil
	}
	if setting := s.lookup(ctx, nil, key); setting != nil {
		return setting, nil
	}
	return nil, nil
}

// GetValue returns the decoded effective value for (key, ownershipID),
// or the supplied default when no row exists or decoding fails.
func (s *Service) GetValue(ctx context.Context, key string, ownershipID int64, defaultValue interface{}) interface{} {
	setting, err := s.Resolve(ctx, key, ownershipID)
	if err != nil || setting == nil {
		return defaultValue
	}

	value, err := setting.Decode()
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("undecodable setting value, using default")
		return defaultValue
	}
	return value
}

// GetBool returns a boolean setting or the default
func (s *Service) GetBool(ctx context.Context, key string, ownershipID int64, defaultValue bool) bool {
	setting, err := s.Resolve(ctx, key, ownershipID)
	if err != nil || setting == nil {
		return defaultValue
	}
	return ParseBool(setting.Value)
}

// GetInt returns an integer setting or the default
func (s *Service) GetInt(ctx context.Context, key string, ownershipID int64, defaultValue int64) int64 {
	value := s.GetValue(ctx, key, ownershipID, nil)
	if v, ok := value.(int64); ok {
		return v
	}
	return defaultValue
}

// GetString returns a string setting or the default
func (s *Service) GetString(ctx context.Context, key string, ownershipID int64, defaultValue string) string {
	setting, err := s.Resolve(ctx, key, ownershipID)
	if err != nil || setting == nil {
		return defaultValue
	}
	return setting.Value
}

// GetFloat returns a decimal setting or the default
func (s *Service) GetFloat(ctx context.Context, key string, ownershipID int64, defaultValue float64) float64 {
	value := s.GetValue(ctx, key, ownershipID, nil)
	if v, ok := value.(float64); ok {
		return v
	}
	return defaultValue
}

// Set writes a setting row and clears the key, group and per-ownership
// aggregate caches in the same call
func (s *Service) Set(ctx context.Context, setting *SystemSetting) error {
	if err := s.store.Upsert(ctx, setting); err != nil {
		return err
	}
	s.invalidate(ctx, setting)
	return nil
}

// Delete removes a setting row and clears its caches
func (s *Service) Delete(ctx context.Context, ownershipID *int64, key, group string) error {
	if err := s.store.Delete(ctx, ownershipID, key); err != nil {
		return err
	}
	s.invalidate(ctx, &SystemSetting{OwnershipID: ownershipID, Key: key, Group: group})
	return nil
}

// GetSetting returns the raw row for one scope without fallback
func (s *Service) GetSetting(ctx context.Context, ownershipID *int64, key string) (*SystemSetting, error) {
	setting, err := s.store.Get(ctx, ownershipID, key)
	if err != nil {
		return nil, err
	}
	return setting, nil
}

// ListGroup returns all rows of a group for one scope
func (s *Service) ListGroup(ctx context.Context, ownershipID *int64, group string) ([]*SystemSetting, error) {
	return s.store.ListGroup(ctx, ownershipID, group)
}

// ListForOwnership returns every ownership-specific row
func (s *Service) ListForOwnership(ctx context.Context, ownershipID int64) ([]*SystemSetting, error) {
	return s.store.ListForOwnership(ctx, ownershipID)
}

// lookup fetches one scope's row through the cache. Errors degrade to a
// miss so settings never become load-bearing for request success.
func (s *Service) lookup(ctx context.Context, ownershipID *int64, key string) *SystemSetting {
	cacheKey := cacheKeyFor(ownershipID, key)

	if s.cache != nil {
		var cached SystemSetting
		found, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.WithError(err).WithField("cache_key", cacheKey).Warn("settings cache read failed")
		} else if found {
			if s.metrics != nil {
				s.metrics.SettingsCacheHitsTotal.Inc()
			}
			return &cached
		}
		if s.metrics != nil {
			s.metrics.SettingsCacheMissesTotal.Inc()
		}
	}

	setting, err := s.store.Get(ctx, ownershipID, key)
	if errors.Is(err, ErrSettingNotFound) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("settings lookup failed, falling back")
		return nil
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, setting, s.cache.TTLFor("setting")); err != nil {
			s.logger.WithError(err).WithField("cache_key", cacheKey).Warn("settings cache write failed")
		}
	}

	return setting
}

func (s *Service) invalidate(ctx context.Context, setting *SystemSetting) {
	if s.cache == nil {
		return
	}
	keys := invalidationKeys(setting)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("keys", fmt.Sprintf("%v", keys)).Warn("settings cache invalidation failed")
	}
}
