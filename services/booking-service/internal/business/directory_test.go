package business

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	*MemoryDirectory
	gets int
}

func (c *countingDirectory) Get(ctx context.Context, id string) (model.Business, error) {
	c.gets++
	return c.MemoryDirectory.Get(ctx, id)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses.yaml")
	doc := `businesses:
  - id: barber-1
    owner_id: owner-1
    name: Corner Barber
    hours: {open: "09:00", close: "17:00"}
    slot_minutes: 30
    timezone: Europe/Berlin
  - id: cafe-2
    owner_id: owner-1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	got, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Corner Barber", got[0].Name)
	require.NotNil(t, got[0].Hours)
	assert.Equal(t, "17:00", got[0].Hours.Close)
	assert.Equal(t, 30, got[0].SlotMinutes)
	assert.Nil(t, got[1].Hours)
	assert.Equal(t, model.DefaultSlotMinutes, got[1].SlotDuration())
	assert.Equal(t, "UTC", got[1].Location())

	dir := NewMemoryDirectory(got...)
	ids, err := dir.ListIDsByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"barber-1", "cafe-2"}, ids)
}

func TestLoadSeedFileRejectsMissingOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("businesses:\n  - id: x\n"), 0o600))
	_, err := LoadSeedFile(path)
	require.Error(t, err)
}

func TestCachedDirectoryReadThrough(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backing := &countingDirectory{MemoryDirectory: NewMemoryDirectory(model.Business{
		ID: "biz-1", OwnerID: "owner-1", Hours: &model.Hours{Open: "09:00", Close: "12:00"}, SlotMinutes: 30,
	})}
	cache := NewCachedDirectory(backing, rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	second, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.gets)
	assert.True(t, s.Exists("booking:business:biz-1"))
	assert.Greater(t, s.TTL("booking:business:biz-1"), time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, "biz-1"))
	_, err = cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.gets)

	_, err = cache.Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, s.Exists("booking:business:missing"))
}

func TestCachedDirectoryFallsBackWhenRedisIsDown(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	s.Close()

	backing := NewMemoryDirectory(model.Business{ID: "biz-1", OwnerID: "owner-1"})
	cache := NewCachedDirectory(backing, rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := cache.Get(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", got.OwnerID)
}
