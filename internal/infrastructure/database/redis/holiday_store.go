package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// HolidayStore shares fetched bank-holiday sets between processes.  Each
// region is stored as a JSON array of YYYY-MM-DD keys.
type HolidayStore struct {
	client *Client
	logger logging.Logger
}

func NewHolidayStore(client *Client, log logging.Logger) *HolidayStore {
	return &HolidayStore{client: client, logger: log}
}

func (s *HolidayStore) key(region string) string {
	return s.client.Key("holidays", region)
}

// Get reports ok=false on a miss.  A corrupt payload is deleted and treated
// as a miss.
func (s *HolidayStore) Get(ctx context.Context, region string) (calendar.HolidaySet, bool, error) {
	key := s.key(region)
	data, err := s.client.GetUnderlyingClient().Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read holidays")
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		s.logger.Warn("Discarding corrupt holiday entry", logging.String("region", region), logging.Err(err))
		s.client.GetUnderlyingClient().Del(ctx, key)
		return nil, false, nil
	}

	set := make(calendar.HolidaySet, len(keys))
	for _, k := range keys {
		d, err := calendar.ParseDate(k)
		if err != nil {
			s.logger.Warn("Discarding corrupt holiday entry", logging.String("region", region), logging.Err(err))
			s.client.GetUnderlyingClient().Del(ctx, key)
			return nil, false, nil
		}
		set.Add(d)
	}
	return set, true, nil
}

// Set stores set with ttl plus up to 10% jitter so replicas do not expire
// together.
func (s *HolidayStore) Set(ctx context.Context, region string, set calendar.HolidaySet, ttl time.Duration) error {
	data, err := json.Marshal(set.Keys())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode holidays")
	}
	if err := s.client.GetUnderlyingClient().Set(ctx, s.key(region), data, jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write holidays")
	}
	return nil
}

func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(float64(ttl)*0.1*rand.Float64())
}
