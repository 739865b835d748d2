package cacheaside

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/pkg/crypt"
)

type fakeFast struct {
	entries map[string][]byte
	getErr  error
	setErr  error
	delErr  error
	gets    int
	sets    int
}

func newFakeFast() *fakeFast {
	return &fakeFast{entries: map[string][]byte{}}
}

func (f *fakeFast) Get(_ context.Context, key string) ([]byte, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.entries[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return value, nil
}

func (f *fakeFast) Set(_ context.Context, key string, value []byte) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = value
	return nil
}

func (f *fakeFast) Delete(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.entries, key)
	return nil
}

type fakeReader struct {
	users map[string]*entity.User
	order []string
	err   error
	calls int
}

func newFakeReader(users ...*entity.User) *fakeReader {
	r := &fakeReader{users: map[string]*entity.User{}}
	for _, u := range users {
		r.users[u.ID] = u
		r.order = append(r.order, u.ID)
	}
	return r
}

func (r *fakeReader) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: user %q", errors.ErrNotFound, id),
			"Repository", "GetByID", "select user")
	}
	return u, nil
}

func (r *fakeReader) Page(_ context.Context, page, limit int) ([]*entity.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	start := (page - 1) * limit
	if start >= len(r.order) {
		return []*entity.User{}, nil
	}
	end := start + limit
	if end > len(r.order) {
		end = len(r.order)
	}
	out := make([]*entity.User, 0, end-start)
	for _, id := range r.order[start:end] {
		out = append(out, r.users[id])
	}
	return out, nil
}

func newTestStore(t *testing.T, fast *fakeFast, docs *fakeReader) *Store[*entity.User] {
	t.Helper()
	t.Setenv(crypt.DefaultKeyEnv, "cacheaside-test-secret")
	return New[*entity.User](entity.TypeUser, fast, docs, crypt.New(""))
}

func TestGetAfterSet(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader()
	store := newTestStore(t, fast, docs)
	ctx := context.Background()

	user := &entity.User{ID: "usr001abc", Email: "a@example.com"}
	require.NoError(t, store.Set(ctx, "usr001abc", user))
	assert.Contains(t, fast.entries, "user:usr001abc")

	got, err := store.Get(ctx, "usr001abc")
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Zero(t, docs.calls, "a cached read never touches the document store")
}

func TestGetFallsThroughAndRepopulates(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader(&entity.User{ID: "usr001abc", Email: "a@example.com"})
	store := newTestStore(t, fast, docs)
	ctx := context.Background()

	got, err := store.Get(ctx, "usr001abc")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, 1, docs.calls)
	assert.Contains(t, fast.entries, "user:usr001abc", "miss repopulates the fast store")

	// Second read is a hit.
	_, err = store.Get(ctx, "usr001abc")
	require.NoError(t, err)
	assert.Equal(t, 1, docs.calls)
}

func TestGetMissesBothStores(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader()
	store := newTestStore(t, fast, docs)

	_, err := store.Get(context.Background(), "usr999zzz")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, fast.entries, "a double miss writes nothing to the fast store")
}

func TestGetSwallowsFastStoreFailure(t *testing.T) {
	fast := newFakeFast()
	fast.getErr = stderrors.New("bucket unavailable")
	docs := newFakeReader(&entity.User{ID: "usr001abc", Email: "a@example.com"})
	store := newTestStore(t, fast, docs)

	got, err := store.Get(context.Background(), "usr001abc")
	require.NoError(t, err, "document store answers despite the fast store being down")
	assert.Equal(t, "a@example.com", got.Email)
}

func TestGetPropagatesDocStoreFailure(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader()
	docs.err = errors.WrapInfrastructure(
		stderrors.New("connection refused"), "Repository", "GetByID", "select user")
	store := newTestStore(t, fast, docs)

	_, err := store.Get(context.Background(), "usr001abc")
	require.Error(t, err)
	assert.True(t, errors.IsInfrastructure(err))
}

func TestGetDropsUnreadableEntry(t *testing.T) {
	fast := newFakeFast()
	fast.entries["user:usr001abc"] = []byte("not-a-sealed-value")
	docs := newFakeReader(&entity.User{ID: "usr001abc", Email: "a@example.com"})
	store := newTestStore(t, fast, docs)

	got, err := store.Get(context.Background(), "usr001abc")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, 1, docs.calls, "unreadable entry falls through to the document store")
	assert.NotEqual(t, []byte("not-a-sealed-value"), fast.entries["user:usr001abc"],
		"the bad entry is replaced")
}

func TestGetEmptyID(t *testing.T) {
	store := newTestStore(t, newFakeFast(), newFakeReader())

	_, err := store.Get(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestSetSwallowsFastStoreFailure(t *testing.T) {
	fast := newFakeFast()
	fast.setErr = stderrors.New("bucket unavailable")
	store := newTestStore(t, fast, newFakeReader())

	err := store.Set(context.Background(), "usr001abc", &entity.User{ID: "usr001abc"})
	assert.NoError(t, err, "fast-store write failures never surface")
}

func TestSetWithoutSecretFails(t *testing.T) {
	store := New[*entity.User](entity.TypeUser, newFakeFast(), newFakeReader(),
		crypt.New("CACHEASIDE_TEST_ABSENT_KEY"))

	err := store.Set(context.Background(), "usr001abc", &entity.User{ID: "usr001abc"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestDelete(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader()
	store := newTestStore(t, fast, docs)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "usr001abc", &entity.User{ID: "usr001abc"}))
	require.NoError(t, store.Delete(ctx, "usr001abc"))
	assert.NotContains(t, fast.entries, "user:usr001abc")

	t.Run("absent entry", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "usr404abc"))
	})

	t.Run("fast store failure swallowed", func(t *testing.T) {
		fast.delErr = stderrors.New("bucket unavailable")
		assert.NoError(t, store.Delete(ctx, "usr001abc"))
	})

	t.Run("empty id", func(t *testing.T) {
		err := store.Delete(ctx, "")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestListPage(t *testing.T) {
	users := make([]*entity.User, 0, 15)
	for i := 0; i < 15; i++ {
		users = append(users, &entity.User{
			ID:        fmt.Sprintf("usr%03dabc", i),
			CreatedAt: int64(1000 + i),
		})
	}
	fast := newFakeFast()
	docs := newFakeReader(users...)
	store := newTestStore(t, fast, docs)
	ctx := context.Background()

	page1, err := store.ListPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page1, 10)
	assert.Equal(t, "usr000abc", page1[0].ID)
	assert.Contains(t, fast.entries, "user:page:1:10")

	t.Run("cached page skips the document store", func(t *testing.T) {
		calls := docs.calls
		again, err := store.ListPage(ctx, 1, 10)
		require.NoError(t, err)
		assert.Len(t, again, 10)
		assert.Equal(t, calls, docs.calls)
	})

	t.Run("last partial page", func(t *testing.T) {
		page2, err := store.ListPage(ctx, 2, 10)
		require.NoError(t, err)
		assert.Len(t, page2, 5)
	})

	t.Run("page beyond the end", func(t *testing.T) {
		page9, err := store.ListPage(ctx, 9, 10)
		require.NoError(t, err)
		assert.Empty(t, page9)
	})
}

func TestListPageValidation(t *testing.T) {
	fast := newFakeFast()
	docs := newFakeReader()
	store := newTestStore(t, fast, docs)
	ctx := context.Background()

	_, err := store.ListPage(ctx, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidPage)

	for _, limit := range []int{0, -5, 101} {
		_, err := store.ListPage(ctx, 1, limit)
		require.Error(t, err, "limit %d", limit)
		assert.ErrorIs(t, err, errors.ErrInvalidLimit)
	}

	assert.Zero(t, fast.gets, "validation failures never touch the fast store")
	assert.Zero(t, docs.calls, "validation failures never touch the document store")
}
