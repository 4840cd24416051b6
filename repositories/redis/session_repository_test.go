package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const retention = 24 * time.Hour

func newTestStore(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(t0)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionRepository(client, "test", retention, zap.NewNop()), mr
}

func deadClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestStore(t)

	s := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, "UA-1", got.UserAgent)
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, got.IsActive)

	assert.Equal(t, "1", mr.HGet("test:session:"+s.ID, "is_active"))
	assert.Equal(t, time.Hour+retention, mr.TTL("test:session:"+s.ID))

	members, err := mr.Members("test:user:42")
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, members)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionRepository_DuplicateClient(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	first := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, models.NewSession(42, "UA-1", t0, time.Hour))
	assert.ErrorIs(t, err, repositories.ErrDuplicateSession)

	require.NoError(t, repo.Create(ctx, models.NewSession(42, "UA-2", t0, time.Hour)))
	require.NoError(t, repo.Create(ctx, models.NewSession(43, "UA-1", t0, time.Hour)))

	active, err := repo.FindActive(ctx, 42, "UA-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = repo.FindActive(ctx, 42, "UA-3")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionRepository_Rotate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	old := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	next := models.NewSession(42, "UA-1", t0.Add(time.Minute), time.Hour)
	require.NoError(t, repo.Rotate(ctx, old.ID, next))

	prev, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, prev.IsActive)

	active, err := repo.FindActive(ctx, 42, "UA-1")
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)

	err = repo.Rotate(ctx, old.ID, models.NewSession(42, "UA-1", t0, time.Hour))
	assert.ErrorIs(t, err, repositories.ErrStaleSession)

	err = repo.Rotate(ctx, "missing", models.NewSession(42, "UA-1", t0, time.Hour))
	assert.ErrorIs(t, err, repositories.ErrStaleSession)
}

func TestSessionRepository_RotateConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	old := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, models.NewSession(42, "UA-2", t0, time.Hour)))

	next := models.NewSession(42, "UA-2", t0, time.Hour)
	err := repo.Rotate(ctx, old.ID, next)
	assert.ErrorIs(t, err, repositories.ErrDuplicateSession)

	still, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)
	_, err = repo.GetByID(ctx, next.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionRepository_ConcurrentRotateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestStore(t)

	old := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- repo.Rotate(ctx, old.ID, models.NewSession(42, "UA-1", t0, time.Hour))
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, repositories.ErrStaleSession)
	}
	assert.Equal(t, 1, wins)
}

func TestSessionRepository_Revoke(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestStore(t)

	s := models.NewSession(7, "ua", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, s))

	changed, err := repo.Revoke(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "0", mr.HGet("test:session:"+s.ID, "is_active"))

	changed, err = repo.Revoke(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.Revoke(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.FindActive(ctx, 7, "ua")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	require.NoError(t, repo.Create(ctx, models.NewSession(7, "ua", t0, time.Hour)))
}

func TestSessionRepository_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestStore(t)

	for _, ua := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, models.NewSession(9, ua, t0, time.Hour)))
	}
	gone := models.NewSession(9, "d", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, gone))
	mr.Del("test:session:" + gone.ID)

	n, err := repo.RevokeAllForUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	members, err := mr.Members("test:user:9")
	require.NoError(t, err)
	assert.NotContains(t, members, gone.ID)
	assert.Len(t, members, 3)

	n, err = repo.RevokeAllForUser(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionRepository_KeysExpireAfterRetention(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestStore(t)

	s := models.NewSession(42, "UA-1", t0, time.Hour)
	require.NoError(t, repo.Create(ctx, s))

	mr.FastForward(time.Hour + time.Minute)
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsExpired(t0.Add(time.Hour+time.Minute)))

	mr.FastForward(retention)
	_, err = repo.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.FindActive(ctx, 42, "UA-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionRepository_Unavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(deadClient(t), "test", retention, zap.NewNop())
	s := models.NewSession(1, "ua", t0, time.Hour)

	assert.ErrorIs(t, repo.Create(ctx, s), repositories.ErrStoreUnavailable)
	_, err := repo.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
	_, err = repo.FindActive(ctx, 1, "ua")
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
	assert.ErrorIs(t, repo.Rotate(ctx, s.ID, s), repositories.ErrStoreUnavailable)
	_, err = repo.Revoke(ctx, s.ID)
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
	_, err = repo.RevokeAllForUser(ctx, 1)
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
	assert.ErrorIs(t, repo.Ping(ctx), repositories.ErrStoreUnavailable)
}

func TestWaitReady(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, WaitReady(context.Background(), client, time.Second, zap.NewNop()))

	err := WaitReady(context.Background(), deadClient(t), 100*time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping redis")
}
