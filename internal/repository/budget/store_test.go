package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain/usage"
)

type expireCall struct {
	key string
	ttl time.Duration
	nx  bool
}

type fakeKV struct {
	values  map[string][]byte
	incrs   map[string]int64
	expires []expireCall
	incrErr error
	getErr  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string][]byte{}, incrs: map[string]int64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) error {
	if f.incrErr != nil {
		return f.incrErr
	}
	f.incrs[key] += val
	return nil
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	f.expires = append(f.expires, expireCall{key, ttl, nx})
	return nil
}

func TestStore_Key(t *testing.T) {
	s := New(newFakeKV(), "acme:")

	if got, want := s.Key("openai", usage.PeriodDay, "2026-03-07"), "acme:budget:openai:day:2026-03-07"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestStore_AddSetsTTLByPeriod(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "vecrag:")
	ctx := context.Background()

	if err := s.Add(ctx, "openai", usage.PeriodDay, "2026-03-07", 10); err != nil {
		t.Fatalf("Add(day): %v", err)
	}
	if err := s.Add(ctx, "openai", usage.PeriodMonth, "2026-03", 15); err != nil {
		t.Fatalf("Add(month): %v", err)
	}

	if got := kv.incrs["vecrag:budget:openai:day:2026-03-07"]; got != 10 {
		t.Errorf("day counter = %d, want 10", got)
	}
	if got := kv.incrs["vecrag:budget:openai:month:2026-03"]; got != 15 {
		t.Errorf("month counter = %d, want 15", got)
	}
	if len(kv.expires) != 2 {
		t.Fatalf("expected 2 EXPIRE calls, got %d", len(kv.expires))
	}
	if kv.expires[0].ttl != dayTTL || !kv.expires[0].nx {
		t.Errorf("day expire = %+v", kv.expires[0])
	}
	if kv.expires[1].ttl != monthTTL || !kv.expires[1].nx {
		t.Errorf("month expire = %+v", kv.expires[1])
	}
}

func TestStore_AddError(t *testing.T) {
	kv := newFakeKV()
	kv.incrErr = errors.New("down")
	s := New(kv, "")

	if err := s.Add(context.Background(), "openai", usage.PeriodDay, "x", 1); err == nil {
		t.Fatal("expected error")
	}
	if len(kv.expires) != 0 {
		t.Errorf("expected no EXPIRE after failed INCRBY")
	}
}

func TestStore_Used(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "")
	kv.values[s.Key("openai", usage.PeriodMonth, "2026-03")] = []byte("42")
	kv.values[s.Key("openai", usage.PeriodMonth, "garbage")] = []byte("x")
	ctx := context.Background()

	if v, err := s.Used(ctx, "openai", usage.PeriodMonth, "2026-03"); err != nil || v != 42 {
		t.Errorf("Used(present) = %d, %v", v, err)
	}
	if v, err := s.Used(ctx, "openai", usage.PeriodMonth, "2026-04"); err != nil || v != 0 {
		t.Errorf("Used(missing) = %d, %v; want 0, nil", v, err)
	}
	if _, err := s.Used(ctx, "openai", usage.PeriodMonth, "garbage"); err == nil {
		t.Error("expected parse error")
	}

	kv.getErr = errors.New("timeout")
	if _, err := s.Used(ctx, "openai", usage.PeriodMonth, "2026-03"); err == nil {
		t.Error("expected store error")
	}
}
