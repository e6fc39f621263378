// README: Service-order (OS) number generation.
package corrida

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NextOSNumber derives the next human-readable service-order number from a
// snapshot of the ride set: max of all parsed numbers plus one, zero-padded to
// five digits. Computed from a possibly-stale snapshot; concurrent fills can
// collide unless a SequenceAllocator serializes assignment.
func NextOSNumber(corridas []Corrida) string {
	return fmt.Sprintf("%05d", MaxOSNumber(corridas)+1)
}

// MaxOSNumber returns the highest assigned OS number in the snapshot, or 0.
// Non-numeric values are skipped rather than treated as errors.
func MaxOSNumber(corridas []Corrida) int {
	max := 0
	for i := range corridas {
		raw := strings.TrimSpace(corridas[i].NumeroOS)
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil && n > max {
			max = n
		}
	}
	return max
}

// SequenceAllocator hands out OS numbers atomically. floor is the highest
// number visible in the caller's snapshot, so a fresh counter never reissues
// a number already on a ride.
type SequenceAllocator interface {
	Next(ctx context.Context, floor int) (string, error)
}

// nextOSScript bumps the counter to at least floor, increments, and returns
// the new value in one round trip.
var nextOSScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then cur = floor end
cur = cur + 1
redis.call('SET', KEYS[1], cur)
return cur
`)

// RedisSequence serializes OS-number assignment through a Redis counter,
// closing the duplicate-number window left by snapshot scans.
type RedisSequence struct {
	rdb *redis.Client
	key string
}

func NewRedisSequence(rdb *redis.Client) *RedisSequence {
	return &RedisSequence{rdb: rdb, key: "corridas:numero_os"}
}

func (s *RedisSequence) Next(ctx context.Context, floor int) (string, error) {
	n, err := nextOSScript.Run(ctx, s.rdb, []string{s.key}, floor).Int()
	if err != nil {
		return "", fmt.Errorf("alocar numero OS: %w", err)
	}
	return fmt.Sprintf("%05d", n), nil
}
