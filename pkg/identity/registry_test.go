package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type memoryStore struct {
	mu       sync.Mutex
	rows     map[string]uuid.UUID
	getErr   error
	inserted int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]uuid.UUID)}
}

func (s *memoryStore) Get(_ context.Context, partner string, entityType models.EntityType, externalID string) (*models.PartnerMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	id, ok := s.rows[Key(partner, entityType, externalID)]
	if !ok {
		return nil, nil
	}
	return &models.PartnerMapping{Partner: partner, EntityType: entityType, ExternalID: externalID, InternalID: id}, nil
}

func (s *memoryStore) Insert(_ context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(partner, entityType, externalID)
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = internalID
	s.inserted++
	return true, nil
}

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry(newMemoryStore(), nil, newTestLogger())

	id, found, err := reg.Resolve(context.Background(), "atlas", models.EntityTypeCamper, "V1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uuid.Nil, id)
}

func TestRegistry_RegisterThenResolve(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemoryStore(), nil, newTestLogger())
	id := uuid.New()

	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeCamper, "V1", id))

	got, found, err := reg.Resolve(ctx, "atlas", models.EntityTypeCamper, "V1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)
}

func TestRegistry_RegisterSameIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	reg := NewRegistry(store, nil, newTestLogger())
	id := uuid.New()

	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeStation, "S1", id))
	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeStation, "S1", id))
	assert.Equal(t, 1, store.inserted)
}

func TestRegistry_RegisterConflict(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemoryStore(), nil, newTestLogger())
	first := uuid.New()

	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeStation, "S1", first))
	err := reg.Register(ctx, "atlas", models.EntityTypeStation, "S1", uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMappingConflict))

	got, _, err := reg.Resolve(ctx, "atlas", models.EntityTypeStation, "S1")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestRegistry_TriplesAreIndependent(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newMemoryStore(), nil, newTestLogger())

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeCamper, "X", a))
	require.NoError(t, reg.Register(ctx, "driftwood", models.EntityTypeCamper, "X", b))
	require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeAddon, "X", c))

	tests := []struct {
		partner    string
		entityType models.EntityType
		want       uuid.UUID
	}{
		{"atlas", models.EntityTypeCamper, a},
		{"driftwood", models.EntityTypeCamper, b},
		{"atlas", models.EntityTypeAddon, c},
	}
	for _, tt := range tests {
		got, found, err := reg.Resolve(ctx, tt.partner, tt.entityType, "X")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, tt.want, got)
	}
}

func TestRegistry_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("boom")
	reg := NewRegistry(store, nil, newTestLogger())

	_, _, err := reg.Resolve(context.Background(), "atlas", models.EntityTypeCamper, "V1")
	assert.EqualError(t, err, "boom")
}

func TestRegistry_LockSerializesResolveAndInsert(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	reg := NewRegistry(store, nil, newTestLogger())

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := reg.Lock(ctx, "atlas", models.EntityTypeCamper, "V1")
			require.NoError(t, err)
			defer release()

			id, found, err := reg.Resolve(ctx, "atlas", models.EntityTypeCamper, "V1")
			require.NoError(t, err)
			if !found {
				id = uuid.New()
				require.NoError(t, reg.Register(ctx, "atlas", models.EntityTypeCamper, "V1", id))
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.inserted)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestKeyedMutex(t *testing.T) {
	t.Run("same key excludes", func(t *testing.T) {
		m := NewKeyedMutex()
		var inside, peak int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := m.Lock(context.Background(), "k")
				require.NoError(t, err)
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), peak)
		assert.Empty(t, m.entries)
	})

	t.Run("different keys do not block", func(t *testing.T) {
		m := NewKeyedMutex()
		releaseA, err := m.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer releaseA()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		releaseB, err := m.Lock(ctx, "b")
		require.NoError(t, err)
		releaseB()
	})

	t.Run("context cancels the wait", func(t *testing.T) {
		m := NewKeyedMutex()
		release, err := m.Lock(context.Background(), "k")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = m.Lock(ctx, "k")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		release()
		release()
		assert.Empty(t, m.entries)
	})
}
