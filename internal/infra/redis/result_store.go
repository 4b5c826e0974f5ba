package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
	"converse-relay/internal/domain/ports/repository"
)

var _ repository.ResultStore = (*ResultStore)(nil)

// ResultStore keeps one hash per user: "turn" holds the current turn id,
// "data" the JSON encoded TaskResult.
type ResultStore struct {
	c *Client
}

func NewResultStore(c *Client) *ResultStore {
	return &ResultStore{c: c}
}

var luaFinish = redis.NewScript(`
if redis.call("HGET", KEYS[1], "turn") == ARGV[1] then
	redis.call("HSET", KEYS[1], "data", ARGV[2])
	if tonumber(ARGV[3]) > 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[3])
	end
	return 1
else
	return 0
end`)

func (s *ResultStore) Begin(ctx context.Context, userID string, r *model.TaskResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := s.c.key("result", userID)
	_, err = s.c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "turn", r.TurnID, "data", data)
		if s.c.ttl > 0 {
			p.PExpire(ctx, key, s.c.ttl)
		}
		return nil
	})
	return err
}

func (s *ResultStore) Finish(ctx context.Context, userID string, r *model.TaskResult) (bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	key := s.c.key("result", userID)
	n, err := luaFinish.Run(ctx, s.c.cli, []string{key}, r.TurnID, data, int64(s.c.ttl/time.Millisecond)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *ResultStore) Get(ctx context.Context, userID string) (*model.TaskResult, error) {
	data, err := s.c.cli.HGet(ctx, s.c.key("result", userID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r model.TaskResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
