package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
	"github.com/visitly/presence-gateway/internal/v1/metrics"
)

// Redis hash layout. keySocket maps identity -> JSON-encoded SocketMetadata;
// the stats hashes map date string -> int.
const (
	keySocket         = "socket"
	keyMaxOnline      = "max_online_count"
	keyMaxOnlineTotal = "max_online_count:total"
)

// RedisStore is the Redis-backed Store. Each mutation is a read-serialize-
// write cycle without transactions: updates are last-writer-wins, which is
// acceptable because the only concurrent writers for the same identity are
// the single connection owning it. All calls run through a circuit breaker;
// an open breaker degrades reads to zero values and drops mutations.
type RedisStore struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewRedisStore connects to the Redis instance named by url (redis://...)
// and verifies connectivity before returning.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 30 * time.Second
	opts.WriteTimeout = 30 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis-meta",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	logging.Info(ctx, "connected to redis meta store", zap.String("addr", opts.Addr))
	return &RedisStore{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "redis-meta"}),
	}
}

// Ping checks Redis connectivity. Used by health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	return err
}

// Close shuts down the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying client so other concerns (rate limiting) can
// share the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) UpsertIdentity(ctx context.Context, sid, sessionID string, nowMs int64) {
	s.execute(ctx, "upsert_identity", func() error {
		rec, ok, err := s.load(ctx, sid)
		if err != nil {
			return err
		}
		if !ok {
			rec = SocketMetadata{
				Identity:      sid,
				SessionID:     sessionID,
				ConnectedAtMs: nowMs,
				RoomJoinedAt:  make(map[string]int64),
			}
		}
		rec.SessionID = sessionID
		rec.UpdatedAtMs = nowMs
		return s.store(ctx, sid, rec)
	})
}

func (s *RedisStore) SetSessionID(ctx context.Context, sid, sessionID string, nowMs int64) {
	s.execute(ctx, "set_session_id", func() error {
		rec, ok, err := s.load(ctx, sid)
		if err != nil || !ok {
			return err
		}
		rec.SessionID = sessionID
		rec.UpdatedAtMs = nowMs
		return s.store(ctx, sid, rec)
	})
}

func (s *RedisStore) JoinRoom(ctx context.Context, sid, room string, nowMs int64) {
	s.execute(ctx, "join_room", func() error {
		rec, ok, err := s.load(ctx, sid)
		if err != nil || !ok {
			return err
		}
		if rec.RoomJoinedAt == nil {
			rec.RoomJoinedAt = make(map[string]int64)
		}
		rec.RoomJoinedAt[room] = nowMs
		rec.UpdatedAtMs = nowMs
		return s.store(ctx, sid, rec)
	})
}

func (s *RedisStore) LeaveRoom(ctx context.Context, sid, room string, nowMs int64) {
	s.execute(ctx, "leave_room", func() error {
		rec, ok, err := s.load(ctx, sid)
		if err != nil || !ok {
			return err
		}
		delete(rec.RoomJoinedAt, room)
		rec.UpdatedAtMs = nowMs
		return s.store(ctx, sid, rec)
	})
}

func (s *RedisStore) Clear(ctx context.Context, sid string) {
	s.execute(ctx, "clear", func() error {
		return s.client.HDel(ctx, keySocket, sid).Err()
	})
}

func (s *RedisStore) UniqueSessionCount(ctx context.Context) int {
	sessions := make(map[string]struct{})
	for _, rec := range s.all(ctx) {
		sessions[rec.SessionID] = struct{}{}
	}
	return len(sessions)
}

func (s *RedisStore) TouchBySession(ctx context.Context, sessionID string, nowMs int64) {
	for _, rec := range s.all(ctx) {
		if rec.SessionID != sessionID {
			continue
		}
		rec.UpdatedAtMs = nowMs
		touched := rec
		s.execute(ctx, "touch_by_session", func() error {
			return s.store(ctx, touched.Identity, touched)
		})
	}
}

func (s *RedisStore) RoomPresence(ctx context.Context, room string) []SocketMetadata {
	var out []SocketMetadata
	for _, rec := range s.all(ctx) {
		if _, ok := rec.RoomJoinedAt[room]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *RedisStore) FindBySession(ctx context.Context, sessionID string) (SocketMetadata, bool) {
	for _, rec := range s.all(ctx) {
		if rec.SessionID == sessionID {
			return rec, true
		}
	}
	return SocketMetadata{}, false
}

func (s *RedisStore) UpdateOnlineStats(ctx context.Context, online int) {
	day := today()
	s.execute(ctx, "update_online_stats", func() error {
		cur, err := s.client.HGet(ctx, keyMaxOnline, day).Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == redis.Nil || online > cur {
			if err := s.client.HSet(ctx, keyMaxOnline, day, online).Err(); err != nil {
				return err
			}
		}
		return s.client.HIncrBy(ctx, keyMaxOnlineTotal, day, 1).Err()
	})
}

func (s *RedisStore) OnlineStatsToday(ctx context.Context) (int, int, bool) {
	day := today()
	res, err := s.cb.Execute(func() (interface{}, error) {
		max, err := s.client.HGet(ctx, keyMaxOnline, day).Int()
		if err != nil {
			return nil, err
		}
		total, err := s.client.HGet(ctx, keyMaxOnlineTotal, day).Int()
		if err != nil {
			return nil, err
		}
		return [2]int{max, total}, nil
	})
	if err != nil {
		return 0, 0, false
	}
	pair := res.([2]int)
	return pair[0], pair[1], true
}

// load reads and decodes one record from the socket hash.
func (s *RedisStore) load(ctx context.Context, sid string) (SocketMetadata, bool, error) {
	raw, err := s.client.HGet(ctx, keySocket, sid).Result()
	if err == redis.Nil {
		return SocketMetadata{}, false, nil
	}
	if err != nil {
		return SocketMetadata{}, false, err
	}
	var rec SocketMetadata
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Corrupt entry: treat as absent so the next write repairs it.
		logging.Warn(ctx, "discarding corrupt socket metadata", zap.String("sid", sid), zap.Error(err))
		return SocketMetadata{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) store(ctx context.Context, sid string, rec SocketMetadata) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, keySocket, sid, string(b)).Err()
}

// all decodes every record in the socket hash, skipping corrupt entries.
func (s *RedisStore) all(ctx context.Context) []SocketMetadata {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.HGetAll(ctx, keySocket).Result()
	})
	if err != nil {
		s.reportFailure(ctx, "hgetall", err)
		return nil
	}

	raw := res.(map[string]string)
	out := make([]SocketMetadata, 0, len(raw))
	for _, v := range raw {
		var rec SocketMetadata
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// execute runs op through the circuit breaker and swallows failures: the
// affected field may stay stale but the caller's session stays healthy.
func (s *RedisStore) execute(ctx context.Context, op string, fn func() error) {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		s.reportFailure(ctx, op, err)
	}
}

func (s *RedisStore) reportFailure(ctx context.Context, op string, err error) {
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		logging.Warn(ctx, "redis circuit breaker open, dropping operation", zap.String("op", op))
		return
	}
	logging.Error(ctx, "redis meta operation failed", zap.String("op", op), zap.Error(err))
}
