// internal/lobby/redis_store.go
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/kacperw/chesshub/internal/models"
)

// RedisStore indexes lobby entries in Redis so several server instances can
// share one waiting pool. Each entry lives in a JSON value under
// chess:lobby:{username}; a per-game-type sorted set scored by rating serves
// the range query.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func entryKey(username string) string {
	return "chess:lobby:" + username
}

func indexKey(gameType models.GameType) string {
	return "chess:lobbyidx:" + string(gameType)
}

func (s *RedisStore) Put(ctx context.Context, entry *models.LobbyEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal lobby entry: %w", err)
	}

	// A re-queue may switch game types; the previous index member has to go
	// or the player would be searchable under both types.
	var prev *models.LobbyEntry
	raw, err := s.rdb.Get(ctx, entryKey(entry.Username)).Bytes()
	if err == nil {
		var p models.LobbyEntry
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			prev = &p
		}
	} else if err != redis.Nil {
		return fmt.Errorf("load lobby entry: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil && prev.GameType != entry.GameType {
			pipe.ZRem(ctx, indexKey(prev.GameType), entry.Username)
		}
		pipe.Set(ctx, entryKey(entry.Username), data, 0)
		pipe.ZAdd(ctx, indexKey(entry.GameType), redis.Z{
			Score:  float64(entry.Rating),
			Member: entry.Username,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store lobby entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, username string) (bool, error) {
	raw, err := s.rdb.Get(ctx, entryKey(username)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load lobby entry: %w", err)
	}
	var entry models.LobbyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return false, fmt.Errorf("decode lobby entry: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKey(username))
		pipe.ZRem(ctx, indexKey(entry.GameType), username)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("remove lobby entry: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Search(ctx context.Context, gameType models.GameType, lo, hi int) ([]*models.LobbyEntry, error) {
	usernames, err := s.rdb.ZRangeByScore(ctx, indexKey(gameType), &redis.ZRangeBy{
		Min: strconv.Itoa(lo),
		Max: strconv.Itoa(hi),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("lobby index range: %w", err)
	}
	var out []*models.LobbyEntry
	for _, username := range usernames {
		raw, err := s.rdb.Get(ctx, entryKey(username)).Bytes()
		if err == redis.Nil {
			// Index member outlived its entry; a concurrent Remove won the
			// race. Skip it, the stale read is tolerated.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load lobby entry: %w", err)
		}
		var entry models.LobbyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode lobby entry: %w", err)
		}
		if entry.GameType != gameType {
			// Stale member left behind by a game type switch on another
			// instance. Skip it; the entry's real index serves it.
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}
