package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"event-portal/models"
	"event-portal/monitoring"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusCache keeps registration-status reads in redis for a short TTL so
// re-entrant views do not hit the backend on every render. Redis failures
// degrade to a miss. A nil *StatusCache always misses.
type StatusCache struct {
	redis   redis.Cmdable
	ttl     time.Duration
	monitor *monitoring.Monitor
	logger  *zap.Logger
}

func NewStatusCache(rc redis.Cmdable, ttl time.Duration, monitor *monitoring.Monitor, logger *zap.Logger) *StatusCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCache{redis: rc, ttl: ttl, monitor: monitor, logger: logger}
}

func statusKey(eventID models.ID, subject string) string {
	return fmt.Sprintf("regstatus:%s:%s", eventID, subject)
}

func (c *StatusCache) Get(ctx context.Context, eventID models.ID, subject string) (*models.RegistrationStatus, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, statusKey(eventID, subject)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("status cache get", zap.String("event_id", eventID.String()), zap.Error(err))
		}
		c.monitor.TrackCache(false)
		return nil, false
	}

	var st models.RegistrationStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		c.logger.Warn("status cache decode", zap.String("event_id", eventID.String()), zap.Error(err))
		c.monitor.TrackCache(false)
		return nil, false
	}
	c.monitor.TrackCache(true)
	return &st, true
}

func (c *StatusCache) Set(ctx context.Context, subject string, st *models.RegistrationStatus) {
	if c == nil || c.redis == nil || st == nil {
		return
	}

	raw, err := json.Marshal(st)
	if err != nil {
		c.logger.Warn("status cache encode", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, statusKey(st.EventID, subject), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("status cache set", zap.String("event_id", st.EventID.String()), zap.Error(err))
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, eventID models.ID, subject string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, statusKey(eventID, subject)).Err(); err != nil {
		c.logger.Warn("status cache invalidate", zap.String("event_id", eventID.String()), zap.Error(err))
	}
}

// InvalidateSubject drops every cached status of one session. Used when a
// payment settles and the event it belonged to is not known.
func (c *StatusCache) InvalidateSubject(ctx context.Context, subject string) {
	if c == nil || c.redis == nil {
		return
	}

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, "regstatus:*:"+subject, 100).Result()
		if err != nil {
			c.logger.Warn("status cache scan", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("status cache invalidate", zap.Error(err))
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// Load returns the registration status, from cache unless fresh is set. A
// fresh read always refreshes the cache. A cached registration still
// waiting on payment is read again, since a gateway return may have
// settled it without the cache being invalidated.
func (c *StatusCache) Load(ctx context.Context, backend Backend, sess models.Session, eventID models.ID, fresh bool) (*models.RegistrationStatus, error) {
	subject := sess.Subject()
	if !fresh {
		if st, ok := c.Get(ctx, eventID, subject); ok && !awaitingPayment(st) {
			return st, nil
		}
	}

	st, err := backend.RegistrationStatus(ctx, sess, eventID)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, subject, st)
	return st, nil
}

func awaitingPayment(st *models.RegistrationStatus) bool {
	return st.Active() && !st.Confirmed() && st.Payment != models.PaymentSettled
}
