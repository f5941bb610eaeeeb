package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveJob is an entry in the running-job registry.
type ActiveJob struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// Registry admits at most one running sync at a time.
type Registry interface {
	// Acquire reports false when name, or any other job, is already active.
	Acquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
	// Refresh extends the entry held by name; ErrNotHeld if it is gone.
	Refresh(ctx context.Context, name string) error
	Active(ctx context.Context) ([]ActiveJob, error)
}

// ErrNotHeld is returned by Refresh when name no longer holds the registry.
var ErrNotHeld = errors.New("registry entry not held")

// MemoryRegistry is a mutex-guarded Registry for a single process.
type MemoryRegistry struct {
	mu     sync.Mutex
	active map[string]time.Time
	now    func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{active: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryRegistry) Acquire(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) > 0 {
		return false, nil
	}
	r.active[name] = r.now()
	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, name)
	return nil
}

func (r *MemoryRegistry) Refresh(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[name]; !ok {
		return ErrNotHeld
	}
	return nil
}

func (r *MemoryRegistry) Active(_ context.Context) ([]ActiveJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveJob, 0, len(r.active))
	for name, started := range r.active {
		out = append(out, ActiveJob{Name: name, StartedAt: started})
	}
	return out, nil
}

// RedisRegistry shares the running-job slot between the api and worker
// processes. The key expires after ttl so a crashed holder cannot wedge it;
// a live holder calls Refresh well within ttl.
type RedisRegistry struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisRegistry creates a registry under key.
func NewRedisRegistry(client *redis.Client, key string, ttl time.Duration) *RedisRegistry {
	if key == "" {
		key = "campusgate:sync:active"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRegistry{client: client, key: key, ttl: ttl}
}

func (r *RedisRegistry) Acquire(ctx context.Context, name string) (bool, error) {
	value := name + "|" + time.Now().UTC().Format(time.RFC3339)
	return r.client.SetNX(ctx, r.key, value, r.ttl).Result()
}

// releaseScript deletes the key only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. "|" then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisRegistry) Release(ctx context.Context, name string) error {
	return releaseScript.Run(ctx, r.client, []string{r.key}, name).Err()
}

// refreshScript extends the key only while it still belongs to the caller.
var refreshScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. "|" then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (r *RedisRegistry) Refresh(ctx context.Context, name string) error {
	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, name, r.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *RedisRegistry) Active(ctx context.Context) ([]ActiveJob, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []ActiveJob{parseActive(v)}, nil
}

func parseActive(v string) ActiveJob {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '|' {
			started, _ := time.Parse(time.RFC3339, v[i+1:])
			return ActiveJob{Name: v[:i], StartedAt: started}
		}
	}
	return ActiveJob{Name: v}
}
