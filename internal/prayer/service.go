package prayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

// Cache is a day-granular times cache. Implemented by store.RedisStore; a
// nil cache disables caching.
type Cache interface {
	GetTimes(ctx context.Context, key string) (models.PrayerTimesForDay, bool, error)
	SetTimes(ctx context.Context, key string, t models.PrayerTimesForDay) error
}

// Service resolves PrayerTimesForDay for a subscription, consulting the
// cache first. Safe for concurrent use.
type Service struct {
	cache  Cache
	logger *zap.Logger
}

func NewService(cache Cache, logger *zap.Logger) *Service {
	return &Service{cache: cache, logger: logger}
}

// TimesFor returns the prayer times of the local day containing date in the
// subscription's timezone.
func (s *Service) TimesFor(ctx context.Context, sub models.Subscription, date time.Time) (models.PrayerTimesForDay, error) {
	tz, err := time.LoadLocation(sub.Timezone)
	if err != nil {
		return models.PrayerTimesForDay{}, &models.ValidationError{Field: "tz", Reason: "unknown timezone: " + sub.Timezone}
	}

	method := ResolveMethod(sub.Preferences.CalculationMethod, sub.Timezone)
	school := ResolveSchool(sub.Preferences.JurisprudenceSchool, sub.Timezone)
	day := date.In(tz).Format("2006-01-02")
	key := cacheKey(sub.Location, method.Name, school, day)

	if s.cache != nil {
		if cached, ok, err := s.cache.GetTimes(ctx, key); err == nil && ok {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("times cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	t, err := TimesForDate(sub.Location, date, tz, method.Name, school)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetTimes(ctx, key, t); err != nil {
			s.logger.Warn("times cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return t, nil
}

func cacheKey(loc models.Location, method, school, day string) string {
	return fmt.Sprintf("praytimes:%.4f:%.4f:%s:%s:%s", loc.Lat, loc.Lon, method, school, day)
}
