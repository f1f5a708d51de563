package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

func TestIncrWithTTLSetsExpiryOnlyOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, "ts:rl:ip:login:10.0.0.1", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d got %d", want, got)
		}
	}
	if fake.expireAttempts != 3 {
		t.Fatalf("expected EXPIRE NX on every hit, got %d", fake.expireAttempts)
	}
	if ttl := fake.ttls["ts:rl:ip:login:10.0.0.1"]; ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
}

func TestIncrWithTTLReportsExpireFailure(t *testing.T) {
	fake := newFakeCommands()
	fake.expireErr = errors.New("READONLY")
	client := &Client{cmd: fake}

	count, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	if err == nil {
		t.Fatal("expected expire error")
	}
	if count != 1 {
		t.Fatalf("count should still be returned, got %d", count)
	}
}

func TestPublishUsesStore(t *testing.T) {
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	channel := client.TableChannel("usn-main", "tbl-1")
	if err := client.Publish(context.Background(), channel, `{"id":"tbl-1"}`); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := fake.published[channel]; len(got) != 1 || got[0] != `{"id":"tbl-1"}` {
		t.Fatalf("unexpected published messages %v", got)
	}
}

func TestCompareAndDeleteOnlyMatchingValue(t *testing.T) {
	fake := newFakeCommands()
	client := &Client{cmd: fake}
	ctx := context.Background()
	fake.data["lease"] = "worker-a"

	removed, err := client.CompareAndDelete(ctx, "lease", "worker-b")
	if err != nil || removed {
		t.Fatalf("foreign value removed=%v err=%v", removed, err)
	}
	if fake.data["lease"] != "worker-a" {
		t.Fatal("lease must survive a mismatched delete")
	}
	removed, err = client.CompareAndDelete(ctx, "lease", "worker-a")
	if err != nil || !removed {
		t.Fatalf("owner delete removed=%v err=%v", removed, err)
	}
	if _, ok := fake.data["lease"]; ok {
		t.Fatal("lease still present")
	}
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	client := &Client{cmd: newFakeCommands()}
	if _, err := client.Get(context.Background(), "ts:table_status:nobody"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	if err := client.Publish(ctx, "c", "m"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if _, err := client.Subscribe(ctx, "c"); err == nil {
		t.Fatal("expected subscribe on empty client to fail")
	}
	if _, err := client.IncrWithTTL(ctx, "k", time.Second); err == nil {
		t.Fatal("expected incr on empty client to fail")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	var k Keys
	cases := map[string]string{
		k.IdempotencyKey("scope", "id"):       "ts:idempotency:scope:id",
		k.AccessSessionKey("jti"):             "ts:session:access:jti",
		k.TableStatusKey("user-1"):            "ts:table_status:user-1",
		k.TableChannel("usn-main", " tbl-1 "): "ts:table_feed:usn-main:tbl-1",
		k.LockKey(""):                         "ts:lock",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}

func TestOptions(t *testing.T) {
	opts, err := Options(config.RedisConfig{URL: "redis://:pw@cache:6380/2", PoolSize: 25, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "pw" {
		t.Fatalf("url not honoured: %+v", opts)
	}
	if opts.PoolSize != 25 || opts.DialTimeout != time.Second {
		t.Fatalf("config defaults not applied: pool=%d dial=%s", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = Options(config.RedisConfig{Address: "localhost:6379", DB: 3})
	if err != nil || opts.Addr != "localhost:6379" || opts.DB != 3 {
		t.Fatalf("unexpected address options %+v err=%v", opts, err)
	}

	if _, err := Options(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

type fakeCommands struct {
	data           map[string]string
	counters       map[string]int64
	ttls           map[string]time.Duration
	published      map[string][]string
	expireAttempts int
	expireErr      error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		data:      map[string]string{},
		counters:  map[string]int64{},
		ttls:      map[string]time.Duration{},
		published: map[string][]string{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeCommands) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expireAttempts++
	if f.expireErr != nil {
		return redis.NewBoolResult(false, f.expireErr)
	}
	if _, ok := f.ttls[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.published[channel] = append(f.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDelete || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if v, ok := f.data[keys[0]]; !ok || v != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
