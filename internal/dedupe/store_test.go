package dedupe

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type memDurable struct {
	seen    map[string]bool
	markErr error
	marks   int
}

func newMemDurable() *memDurable {
	return &memDurable{seen: make(map[string]bool)}
}

func (d *memDurable) AlreadyProcessed(_ context.Context, provider, messageID string) (bool, error) {
	return d.seen[provider+"/"+messageID], nil
}

func (d *memDurable) MarkProcessed(_ context.Context, provider, messageID string) (bool, error) {
	d.marks++
	if d.markErr != nil {
		return false, d.markErr
	}
	key := provider + "/" + messageID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func newRedisStore(t *testing.T, durable DurableStore) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, durable, logging.Default()), mr
}

func TestFirstDeliveryOncePerID(t *testing.T) {
	durable := newMemDurable()
	store, _ := newRedisStore(t, durable)

	first, err := store.FirstDelivery(context.Background(), "messenger", "mid.1")
	if err != nil || !first {
		t.Fatalf("expected first delivery, got first=%v err=%v", first, err)
	}

	again, err := store.FirstDelivery(context.Background(), "messenger", "mid.1")
	if err != nil || again {
		t.Fatalf("expected duplicate suppressed, got first=%v err=%v", again, err)
	}

	// The duplicate was answered from Redis without touching Postgres again.
	if durable.marks != 1 {
		t.Fatalf("expected one durable mark, got %d", durable.marks)
	}
}

func TestFirstDeliveryDistinctIDs(t *testing.T) {
	store, _ := newRedisStore(t, newMemDurable())

	for _, id := range []string{"mid.1", "mid.2", "mid.3"} {
		first, err := store.FirstDelivery(context.Background(), "messenger", id)
		if err != nil || !first {
			t.Fatalf("expected %s to be first, got first=%v err=%v", id, first, err)
		}
	}
}

func TestFirstDeliveryDurableBacksUpColdRedis(t *testing.T) {
	durable := newMemDurable()
	store, mr := newRedisStore(t, durable)

	if first, _ := store.FirstDelivery(context.Background(), "messenger", "mid.1"); !first {
		t.Fatal("expected first delivery")
	}

	// Redis loses its keys; the durable store still remembers.
	mr.FlushAll()
	first, err := store.FirstDelivery(context.Background(), "messenger", "mid.1")
	if err != nil || first {
		t.Fatalf("expected durable store to suppress the redelivery, got first=%v err=%v", first, err)
	}
}

func TestFirstDeliveryRedisDownFallsThrough(t *testing.T) {
	durable := newMemDurable()
	store, mr := newRedisStore(t, durable)
	mr.Close()

	first, err := store.FirstDelivery(context.Background(), "messenger", "mid.1")
	if err != nil || !first {
		t.Fatalf("expected durable fallback to answer, got first=%v err=%v", first, err)
	}
	if durable.marks != 1 {
		t.Fatalf("expected the durable store consulted, got %d marks", durable.marks)
	}
}

func TestFirstDeliveryNoRedis(t *testing.T) {
	durable := newMemDurable()
	store := NewStore(nil, durable, logging.Default())

	if first, _ := store.FirstDelivery(context.Background(), "messenger", "mid.1"); !first {
		t.Fatal("expected first delivery")
	}
	if first, _ := store.FirstDelivery(context.Background(), "messenger", "mid.1"); first {
		t.Fatal("expected duplicate suppressed by the durable store")
	}
}

func TestFirstDeliveryDurableError(t *testing.T) {
	durable := newMemDurable()
	durable.markErr = errors.New("database down")
	store := NewStore(nil, durable, logging.Default())

	if _, err := store.FirstDelivery(context.Background(), "messenger", "mid.1"); err == nil {
		t.Fatal("expected durable error to surface")
	}
}

func TestFirstDeliveryEmptyMessageID(t *testing.T) {
	store := NewStore(nil, newMemDurable(), logging.Default())

	// Messages without an id cannot be deduplicated; let them through.
	first, err := store.FirstDelivery(context.Background(), "messenger", "")
	if err != nil || !first {
		t.Fatalf("expected pass-through, got first=%v err=%v", first, err)
	}
}
