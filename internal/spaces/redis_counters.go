package spaces

import (
	"context"
	"fmt"
	"strconv"

	"parktayo/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// LiveCounters mirrors per-space availability in Redis for cheap reads on
// listing and availability endpoints. The database row stays authoritative;
// counters are best-effort and reseeded on drift.
type LiveCounters struct {
	redis *redis.Client
}

func NewLiveCounters(redisClient *redis.Client) *LiveCounters {
	return &LiveCounters{redis: redisClient}
}

// Lua script for conditional decrement - never goes below zero.
const luaSpotDecrement = `
-- KEYS[1] = spots counter key
local current = redis.call("GET", KEYS[1])
if not current then
    return {0, "missing"}
end
current = tonumber(current)
if current <= 0 then
    return {0, "empty"}
end
redis.call("DECR", KEYS[1])
return {1, tostring(current - 1)}
`

// Lua script for conditional increment - never exceeds total capacity.
const luaSpotIncrement = `
-- KEYS[1] = spots counter key
-- ARGV[1] = total capacity
local current = redis.call("GET", KEYS[1])
if not current then
    return {0, "missing"}
end
current = tonumber(current)
local total = tonumber(ARGV[1])
if current >= total then
    return {0, "full"}
end
redis.call("INCR", KEYS[1])
return {1, tostring(current + 1)}
`

// Seed writes the counter from the authoritative database value.
func (lc *LiveCounters) Seed(ctx context.Context, spaceID string, availableSpots int) error {
	if lc.redis == nil {
		return nil
	}
	return lc.redis.Set(ctx, constants.SpaceSpotsKey(spaceID), availableSpots, 0).Err()
}

// Get returns the live counter value. ok is false when the counter is not
// seeded; callers fall back to the database.
func (lc *LiveCounters) Get(ctx context.Context, spaceID string) (int, bool) {
	if lc.redis == nil {
		return 0, false
	}
	val, err := lc.redis.Get(ctx, constants.SpaceSpotsKey(spaceID)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Decrement atomically takes one live spot. A missing counter is not an
// error; it just means the mirror is cold.
func (lc *LiveCounters) Decrement(ctx context.Context, spaceID string) error {
	if lc.redis == nil {
		return nil
	}
	return lc.eval(ctx, luaSpotDecrement, constants.SpaceSpotsKey(spaceID))
}

// Increment atomically returns one live spot, capped at total capacity.
func (lc *LiveCounters) Increment(ctx context.Context, spaceID string, totalSpots int) error {
	if lc.redis == nil {
		return nil
	}
	return lc.eval(ctx, luaSpotIncrement, constants.SpaceSpotsKey(spaceID), strconv.Itoa(totalSpots))
}

func (lc *LiveCounters) eval(ctx context.Context, script, key string, args ...interface{}) error {
	result, err := lc.redis.EvalSha(ctx, script, []string{key}, args...).Result()
	if err != nil {
		// Script not loaded yet; eval directly.
		result, err = lc.redis.Eval(ctx, script, []string{key}, args...).Result()
		if err != nil {
			return fmt.Errorf("failed to run spot counter script: %w", err)
		}
	}

	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 2 {
		return fmt.Errorf("unexpected result format from spot counter script")
	}
	if success, _ := resultArray[0].(int64); success == 0 {
		reason, _ := resultArray[1].(string)
		if reason == "missing" {
			// Cold mirror; the next availability read reseeds it.
			return nil
		}
	}
	return nil
}

// PreloadScripts loads the counter scripts into Redis.
func (lc *LiveCounters) PreloadScripts(ctx context.Context) error {
	if lc.redis == nil {
		return nil
	}
	if _, err := lc.redis.ScriptLoad(ctx, luaSpotDecrement).Result(); err != nil {
		return fmt.Errorf("failed to load spot decrement script: %w", err)
	}
	if _, err := lc.redis.ScriptLoad(ctx, luaSpotIncrement).Result(); err != nil {
		return fmt.Errorf("failed to load spot increment script: %w", err)
	}
	return nil
}
