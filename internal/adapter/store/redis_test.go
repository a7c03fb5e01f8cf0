package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// fakeRedis is an in-memory redisClient.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, newRedisStore(newFakeRedis(), "aiassist:"))
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	fake := newFakeRedis()
	s := newRedisStore(fake, "aiassist:")

	if err := s.Set(context.Background(), "global", "v"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.data["aiassist:global"]; !ok {
		t.Errorf("keys = %v, want prefixed key", fake.data)
	}
	if err := s.Close(); err != nil || !fake.closed {
		t.Errorf("Close = %v, closed = %v", err, fake.closed)
	}
}

func TestRedisStoreGetError(t *testing.T) {
	fake := newFakeRedis()
	fake.getErr = errors.New("connection refused")
	s := newRedisStore(fake, "")

	_, found, err := s.Get(context.Background(), "global")
	if err == nil || found {
		t.Errorf("Get = found %v, err %v; want error", found, err)
	}
}
