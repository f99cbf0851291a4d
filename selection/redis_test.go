package selection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

func newTestRedisStore(t *testing.T, fake *clock.FakeClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	store, err := NewStore(StoreTypeRedis,
		WithRedisClient(redis.NewClient(&redis.Options{Addr: server.Addr()})),
		WithRedisTTL(time.Hour),
		WithKeyPrefix("test:selection:"),
		WithClock(fake),
	)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store.(*RedisStore), server
}

func TestRedisStore(t *testing.T) {
	fake := clock.Fake(epoch)
	store, _ := newTestRedisStore(t, fake)
	testStoreContract(t, store, fake)
}

func TestRedisStorePayload(t *testing.T) {
	store, server := newTestRedisStore(t, clock.Fake(epoch))
	ctx := context.Background()

	if err := store.Create(ctx, &Selection{UserID: "u1", OrgID: "org_a", ProjectID: "p1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw, err := server.Get("test:selection:u1")
	if err != nil {
		t.Fatalf("raw key missing: %v", err)
	}
	var decoded Selection
	if err := unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("payload is not CBOR: %v", err)
	}
	if decoded.OrgID != "org_a" || decoded.ProjectID != "p1" || decoded.Version != 1 {
		t.Fatalf("decoded payload = %+v", decoded)
	}
	if ttl := server.TTL("test:selection:u1"); ttl != time.Hour {
		t.Fatalf("ttl = %s, want 1h", ttl)
	}
}

func TestRedisStoreCreateKeepsExisting(t *testing.T) {
	store, _ := newTestRedisStore(t, clock.Fake(epoch))
	ctx := context.Background()

	if err := store.Create(ctx, &Selection{UserID: "u1", OrgID: "org_a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, &Selection{UserID: "u1", OrgID: "org_b"}); !errors.Is(err, consolesync.ErrAlreadyExists) {
		t.Fatalf("second Create err = %v", err)
	}
	got, _ := store.Get(ctx, "u1")
	if got.OrgID != "org_a" {
		t.Fatalf("existing selection overwritten: %+v", got)
	}
}

// writeAfterRead writes key through another connection right after the
// watched GET, so the transaction that follows must abort.
type writeAfterRead struct {
	other *redis.Client
	key   string
	once  sync.Once
}

func (h *writeAfterRead) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *writeAfterRead) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		args := cmd.Args()
		if cmd.Name() == "get" && len(args) > 1 && args[1] == h.key {
			h.once.Do(func() {
				h.other.Set(ctx, h.key, "written elsewhere", 0)
			})
		}
		return err
	}
}

func (h *writeAfterRead) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreConcurrentWriteIsVersionConflict(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	other := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { other.Close() })

	store := NewRedisStore(client, time.Hour)
	defer store.Close()
	ctx := context.Background()

	sel := &Selection{UserID: "u1", OrgID: "org_a"}
	if err := store.Create(ctx, sel); err != nil {
		t.Fatalf("Create: %v", err)
	}

	client.AddHook(&writeAfterRead{other: other, key: store.key("u1")})
	sel.ProjectID = "p2"
	err := store.Update(ctx, sel)
	if !errors.Is(err, consolesync.ErrVersionConflict) {
		t.Fatalf("Update err = %v, want ErrVersionConflict", err)
	}
	if sel.Version != 1 {
		t.Fatalf("aborted update changed version to %d", sel.Version)
	}
}
