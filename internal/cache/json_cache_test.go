package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, JSONCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, "test")
}

func TestRedisJSONCacheRoundTrip(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string   `json:"name"`
		Terms []string `json:"terms"`
	}
	var got payload
	hit, err := c.GetJSON(ctx, "k", &got)
	if err != nil || hit {
		t.Fatalf("GetJSON on empty = %v, %v", hit, err)
	}

	want := payload{Name: "reddit", Terms: []string{"go", "rust"}}
	if err := c.SetJSON(ctx, "k", want, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("key should be stored under the prefix")
	}
	hit, err = c.GetJSON(ctx, "k", &got)
	if err != nil || !hit {
		t.Fatalf("GetJSON = %v, %v", hit, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(2 * time.Minute)
	hit, _ = c.GetJSON(ctx, "k", &got)
	if hit {
		t.Fatal("entry should have expired")
	}
}

func TestNoopWhenNoClient(t *testing.T) {
	c := New(nil, "x")
	if _, ok := c.(NoopJSONCache); !ok {
		t.Fatalf("New(nil) = %T, want NoopJSONCache", c)
	}
	client, err := NewClient("")
	if err != nil || client != nil {
		t.Fatalf("NewClient(\"\") = %v, %v", client, err)
	}
	if _, err := NewClient("://bad"); err == nil {
		t.Fatal("expected parse error")
	}
}
