package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_lmsync/internal/config"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name string
	open func(t *testing.T, clock *fakeClock) Ledger
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, clock *fakeClock) Ledger {
			return NewMemory(WithClock(clock.Now))
		}},
		{"sqlite", func(t *testing.T, clock *fakeClock) Ledger {
			l, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), WithClock(clock.Now))
			require.NoError(t, err)
			return l
		}},
		{"redis", func(t *testing.T, clock *fakeClock) Ledger {
			mr := miniredis.RunT(t)
			l, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()}, WithClock(clock.Now))
			require.NoError(t, err)
			return l
		}},
	}
}

func TestLedger_Contract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("unknown key is not fresh", func(t *testing.T) {
				l := b.open(t, newFakeClock())
				defer l.Close()

				fresh, err := l.IsFresh(ctx, "courses", time.Hour)
				require.NoError(t, err)
				assert.False(t, fresh)
				_, ok, err := l.Get(ctx, "courses")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("fresh within ttl then stale", func(t *testing.T) {
				clock := newFakeClock()
				l := b.open(t, clock)
				defer l.Close()

				require.NoError(t, l.RecordSuccess(ctx, "courses", ""))
				clock.Advance(59 * time.Minute)
				fresh, err := l.IsFresh(ctx, "courses", time.Hour)
				require.NoError(t, err)
				assert.True(t, fresh)

				clock.Advance(time.Minute)
				fresh, err = l.IsFresh(ctx, "courses", time.Hour)
				require.NoError(t, err)
				assert.False(t, fresh, "now - lastSyncedAt == ttl is stale")
			})

			t.Run("zero ttl is never fresh", func(t *testing.T) {
				l := b.open(t, newFakeClock())
				defer l.Close()

				require.NoError(t, l.RecordSuccess(ctx, "courses", ""))
				fresh, err := l.IsFresh(ctx, "courses", 0)
				require.NoError(t, err)
				assert.False(t, fresh)
			})

			t.Run("empty key is ignored", func(t *testing.T) {
				l := b.open(t, newFakeClock())
				defer l.Close()

				require.NoError(t, l.RecordSuccess(ctx, "", "cursor"))
				fresh, err := l.IsFresh(ctx, "", time.Hour)
				require.NoError(t, err)
				assert.False(t, fresh)
				_, ok, err := l.Get(ctx, "")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("cursor and timestamp are updated", func(t *testing.T) {
				clock := newFakeClock()
				l := b.open(t, clock)
				defer l.Close()

				require.NoError(t, l.RecordSuccess(ctx, "assignments", "https://lms/api?page=2"))
				clock.Advance(time.Minute)
				require.NoError(t, l.RecordSuccess(ctx, "assignments", ""))

				rec, ok, err := l.Get(ctx, "assignments")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "assignments", rec.Key)
				assert.Equal(t, "", rec.Cursor)
				assert.False(t, rec.HasNext())
				assert.True(t, rec.LastSyncedAt.Equal(clock.Now()))
			})

			t.Run("invalidate and reset", func(t *testing.T) {
				l := b.open(t, newFakeClock())
				defer l.Close()

				require.NoError(t, l.RecordSuccess(ctx, "a", ""))
				require.NoError(t, l.RecordSuccess(ctx, "b", "next"))
				require.NoError(t, l.Invalidate(ctx, "a"))

				_, ok, _ := l.Get(ctx, "a")
				assert.False(t, ok)
				rec, ok, _ := l.Get(ctx, "b")
				assert.True(t, ok)
				assert.True(t, rec.HasNext())

				require.NoError(t, l.Reset(ctx))
				_, ok, _ = l.Get(ctx, "b")
				assert.False(t, ok)
				require.NoError(t, l.Reset(ctx), "reset of an empty ledger")
			})
		})
	}
}

func TestSQLiteLedger_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	clock := newFakeClock()

	l, err := OpenSQLite(ctx, path, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, l.RecordSuccess(ctx, "courses", "next-url"))
	require.NoError(t, l.Close())

	reopened, err := OpenSQLite(ctx, path, WithClock(clock.Now))
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok, err := reopened.Get(ctx, "courses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "next-url", rec.Cursor)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestRedisLedger_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr(), KeyPrefix: "a:"})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr(), KeyPrefix: "b:"})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.RecordSuccess(ctx, "courses", ""))
	require.NoError(t, b.RecordSuccess(ctx, "courses", ""))
	require.NoError(t, a.Reset(ctx))

	assert.False(t, mr.Exists("a:courses"))
	assert.True(t, mr.Exists("b:courses"))
}

func TestRedisLedger_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	l, err := NewRedis(ctx, RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer l.Close()

	mr.HSet(defaultRedisPrefix+"courses", "synced_at", "yesterday")
	_, _, err = l.Get(ctx, "courses")
	assert.Error(t, err)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	mem, err := NewFromConfig(ctx, config.LedgerConfig{Backend: config.LedgerMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, mem)

	def, err := NewFromConfig(ctx, config.LedgerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, def)

	sq, err := NewFromConfig(ctx, config.LedgerConfig{Backend: config.LedgerSQLite, SQLitePath: filepath.Join(t.TempDir(), "l.db")})
	require.NoError(t, err)
	defer sq.Close()
	assert.IsType(t, &SQLiteLedger{}, sq)

	mr := miniredis.RunT(t)
	rd, err := NewFromConfig(ctx, config.LedgerConfig{Backend: config.LedgerRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer rd.Close()
	assert.IsType(t, &RedisLedger{}, rd)

	_, err = NewFromConfig(ctx, config.LedgerConfig{Backend: "etcd"})
	assert.Error(t, err)

	bad, err := NewFromConfig(ctx, config.LedgerConfig{Backend: config.LedgerSQLite})
	assert.Error(t, err)
	assert.Nil(t, bad)
}
