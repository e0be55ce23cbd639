package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// budget keys live two days so a reservation taken just before the UTC
// rollover stays visible until its order settles.
const budgetKeyTTL = 48 * time.Hour

// reserveScript performs the check-and-reserve in a single Redis round trip
// so concurrent engine instances cannot double-spend a budget.
var reserveScript = redis.NewScript(`
local reserved = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if reserved + amount > limit then
	return 0
end
redis.call('INCRBYFLOAT', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
local reserved = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local next = reserved - amount
if next < 0 then
	next = 0
end
redis.call('SET', KEYS[1], tostring(next), 'EX', ARGV[2])
return 1
`)

// RedisBudgetStore is a budget store shared across engine instances.
type RedisBudgetStore struct {
	client *redis.Client
}

// NewRedisBudgetStore creates a Redis-backed budget store and verifies
// connectivity.
func NewRedisBudgetStore(ctx context.Context, addr, password string, db int) (*RedisBudgetStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBudgetStore{client: client}, nil
}

func redisBudgetKey(userID, day string) string {
	return fmt.Sprintf("dexrouter:budget:%s:%s", userID, day)
}

// Reserve implements BudgetStore.
func (s *RedisBudgetStore) Reserve(ctx context.Context, userID, day string, amount, limit float64) (bool, error) {
	res, err := reserveScript.Run(ctx, s.client,
		[]string{redisBudgetKey(userID, day)},
		amount, limit, int(budgetKeyTTL.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve budget: %w", err)
	}
	return res == 1, nil
}

// Release implements BudgetStore.
func (s *RedisBudgetStore) Release(ctx context.Context, userID, day string, amount float64) error {
	err := releaseScript.Run(ctx, s.client,
		[]string{redisBudgetKey(userID, day)},
		amount, int(budgetKeyTTL.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("release budget: %w", err)
	}
	return nil
}

// Reserved implements BudgetStore.
func (s *RedisBudgetStore) Reserved(ctx context.Context, userID, day string) (float64, error) {
	val, err := s.client.Get(ctx, redisBudgetKey(userID, day)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read budget: %w", err)
	}
	return val, nil
}

// Close implements BudgetStore.
func (s *RedisBudgetStore) Close() error {
	return s.client.Close()
}
