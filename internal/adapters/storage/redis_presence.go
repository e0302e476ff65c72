package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore keeps presence records in Redis hashes so several
// coordinator processes and the HTTP side can read them cheaply. All other
// records go to the wrapped store.
type RedisPresenceStore struct {
	core.Store
	rdb    *redis.Client
	prefix string
}

var _ core.Store = (*RedisPresenceStore)(nil)

func NewRedisPresenceStore(inner core.Store, rdb *redis.Client, prefix string) *RedisPresenceStore {
	if prefix == "" {
		prefix = "voicehub"
	}
	return &RedisPresenceStore{Store: inner, rdb: rdb, prefix: prefix}
}

func (s *RedisPresenceStore) key(uid domain.UserID) string {
	return s.prefix + ":presence:" + string(uid)
}

func (s *RedisPresenceStore) GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(uid)).Result()
	if err != nil {
		return domain.Presence{}, fmt.Errorf("storage.get_presence: %w", err)
	}
	if len(fields) == 0 {
		return domain.Presence{}, domain.NotFound("storage.get_presence", "presence")
	}
	p := domain.Presence{
		UserID:    uid,
		ServerID:  domain.ServerID(fields["server"]),
		ChannelID: domain.ChannelID(fields["channel"]),
		Status:    domain.Status(fields["status"]),
	}
	p.LastActiveAt = parseMillis(fields["active"])
	p.UpdatedAt = parseMillis(fields["updated"])
	return p, nil
}

// PutPresence replaces the whole hash in one MULTI so readers never see a
// channel without its server.
func (s *RedisPresenceStore) PutPresence(ctx context.Context, p domain.Presence) error {
	key := s.key(p.UserID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"server", string(p.ServerID),
			"channel", string(p.ChannelID),
			"status", string(p.Status),
			"active", strconv.FormatInt(millis(p.LastActiveAt), 10),
			"updated", strconv.FormatInt(millis(p.UpdatedAt), 10),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage.put_presence: %w", err)
	}
	return nil
}

// Ping checks the connection, used by the health endpoint.
func (s *RedisPresenceStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return fromMillis(ms)
}
