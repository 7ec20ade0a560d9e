package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
)

// RedisConversationStore keeps conversation memory in Redis lists.
//
// Layout under the configured prefix:
//
//	<prefix>:conv:<user>:<scope>  list of JSON turns, capped with LTRIM
//	<prefix>:conv:scopes:<user>   set of the user's scopes
//	<prefix>:conv:activity        sorted set "<user>:<scope>" scored by last activity
type RedisConversationStore struct {
	rdb         *goredis.Client
	prefix      string
	maxMessages int
}

// NewRedisConversationStore connects to Redis and verifies it answers
func NewRedisConversationStore(cfg config.RedisConfig, maxMessages int) (*RedisConversationStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if maxMessages < 1 {
		maxMessages = 1
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "storerouter"
	}
	return &RedisConversationStore{rdb: rdb, prefix: prefix, maxMessages: maxMessages}, nil
}

// Close releases the Redis connection pool
func (s *RedisConversationStore) Close() error {
	return s.rdb.Close()
}

// Append records a turn and evicts the oldest turns beyond the cap
func (s *RedisConversationStore) Append(ctx context.Context, userID int64, scope, role, content string) error {
	now := time.Now().UTC()
	raw, err := json.Marshal(domain.Turn{Role: role, Content: content, CreatedAt: now})
	if err != nil {
		return err
	}

	listKey := s.listKey(userID, scope)
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, listKey, raw)
		p.LTrim(ctx, listKey, int64(-s.maxMessages), -1)
		p.SAdd(ctx, s.scopesKey(userID), scope)
		p.ZAdd(ctx, s.activityKey(), goredis.Z{Score: float64(now.Unix()), Member: member(userID, scope)})
		return nil
	})
	return err
}

// Recent returns the remembered turns, oldest first
func (s *RedisConversationStore) Recent(ctx context.Context, userID int64, scope string) ([]domain.Turn, error) {
	items, err := s.rdb.LRange(ctx, s.listKey(userID, scope), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear forgets one scope of a user, or every scope when scope is empty
func (s *RedisConversationStore) Clear(ctx context.Context, userID int64, scope string) error {
	scopes := []string{scope}
	if scope == "" {
		all, err := s.rdb.SMembers(ctx, s.scopesKey(userID)).Result()
		if err != nil {
			return err
		}
		scopes = all
	}
	if len(scopes) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, sc := range scopes {
			s.forget(ctx, p, userID, sc)
		}
		return nil
	})
	return err
}

// Sweep removes every scope idle since before cutoff
func (s *RedisConversationStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.rdb.ZRangeByScore(ctx, s.activityKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, m := range stale {
			userID, scope, ok := parseMember(m)
			if !ok {
				p.ZRem(ctx, s.activityKey(), m)
				continue
			}
			s.forget(ctx, p, userID, scope)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Stats counts remembered users, scopes and turns
func (s *RedisConversationStore) Stats(ctx context.Context) (domain.MemoryStats, error) {
	var stats domain.MemoryStats
	members, err := s.rdb.ZRange(ctx, s.activityKey(), 0, -1).Result()
	if err != nil {
		return stats, err
	}

	users := make(map[int64]bool)
	for _, m := range members {
		userID, scope, ok := parseMember(m)
		if !ok {
			continue
		}
		users[userID] = true
		stats.Scopes++
		n, err := s.rdb.LLen(ctx, s.listKey(userID, scope)).Result()
		if err != nil {
			return stats, err
		}
		stats.Messages += int(n)
	}
	stats.Users = len(users)
	return stats, nil
}

func (s *RedisConversationStore) forget(ctx context.Context, p goredis.Pipeliner, userID int64, scope string) {
	p.Del(ctx, s.listKey(userID, scope))
	p.SRem(ctx, s.scopesKey(userID), scope)
	p.ZRem(ctx, s.activityKey(), member(userID, scope))
}

func (s *RedisConversationStore) listKey(userID int64, scope string) string {
	return fmt.Sprintf("%s:conv:%d:%s", s.prefix, userID, scope)
}

func (s *RedisConversationStore) scopesKey(userID int64) string {
	return fmt.Sprintf("%s:conv:scopes:%d", s.prefix, userID)
}

func (s *RedisConversationStore) activityKey() string {
	return s.prefix + ":conv:activity"
}

func member(userID int64, scope string) string {
	return strconv.FormatInt(userID, 10) + ":" + scope
}

func parseMember(m string) (int64, string, bool) {
	id, scope, found := strings.Cut(m, ":")
	if !found {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, scope, true
}
