package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardattend/internal/tablestore"
)

func newRepo(t *testing.T) (*Repository, *tablestore.Memory) {
	t.Helper()
	mem := tablestore.NewMemory()
	r := NewRepository(mem, nil)
	require.NoError(t, r.Init(context.Background()))
	return r, mem
}

func TestRegister_TrimsAndPreservesCase(t *testing.T) {
	r, mem := newRepo(t)
	ctx := context.Background()

	err := r.Register(ctx, User{
		UserID:       "  Alice@X.com ",
		Name:         " Alice ",
		Phone:        "98765 ",
		PasswordHash: "abc123",
	})
	require.NoError(t, err)

	rows, err := mem.Load(ctx, tablestore.Users)
	require.NoError(t, err)
	assert.Equal(t, []tablestore.Row{{"Alice@X.com", "Alice", "98765", "", "abc123", ""}}, rows)
}

func TestRegister_DuplicateIsCaseInsensitive(t *testing.T) {
	r, mem := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, User{UserID: "Alice@X.com", PasswordHash: "h1"}))
	before, err := mem.Load(ctx, tablestore.Users)
	require.NoError(t, err)

	for _, id := range []string{"alice@x.com", " ALICE@X.COM", "Alice@X.com\t"} {
		err := r.Register(ctx, User{UserID: id, PasswordHash: "h2"})
		assert.ErrorIs(t, err, ErrDuplicateUser, id)
	}

	after, err := mem.Load(ctx, tablestore.Users)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegister_RequiresIDAndHash(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.Register(ctx, User{UserID: "  ", PasswordHash: "h"}), ErrMissingField)
	assert.ErrorIs(t, r.Register(ctx, User{UserID: "bob", PasswordHash: ""}), ErrMissingField)
}

func TestFind_LookupSymmetry(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, User{UserID: "Alice@X.com", Name: "Alice", PasswordHash: "h"}))
	require.NoError(t, r.Register(ctx, User{UserID: "bob", PasswordHash: "h"}))

	for _, q := range []string{"ALICE@X.COM", "alice@x.com", "  Alice@X.com  "} {
		u, err := r.Find(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, u, q)
		assert.Equal(t, "Alice@X.com", u.UserID)
		assert.Equal(t, "Alice", u.Name)
	}
}

func TestFind_Absent(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	u, err := r.Find(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, r.Register(ctx, User{UserID: "bob", PasswordHash: "h"}))
	u, err = r.Find(ctx, "bo")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = r.Find(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFind_StoredIDWithWhitespace(t *testing.T) {
	mem := tablestore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Initialize(ctx, tablestore.Users))
	require.NoError(t, mem.Save(ctx, tablestore.Users, []tablestore.Row{{" 12345 ", "", "", "", "h", ""}}))

	u, err := NewRepository(mem, nil).Find(ctx, "12345")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "12345", u.UserID)
}

type failingBackend struct {
	mock.Mock
	tablestore.Backend
}

func (f *failingBackend) Load(ctx context.Context, t tablestore.Table) ([]tablestore.Row, error) {
	args := f.Called(ctx, t)
	rows, _ := args.Get(0).([]tablestore.Row)
	return rows, args.Error(1)
}

func (f *failingBackend) Save(ctx context.Context, t tablestore.Table, rows []tablestore.Row) error {
	return f.Called(ctx, t, rows).Error(0)
}

func TestRegister_PropagatesStoreFailure(t *testing.T) {
	ctx := context.Background()
	unavailable := errors.Join(tablestore.ErrStoreUnavailable, errors.New("locked"))

	b := new(failingBackend)
	b.On("Load", ctx, tablestore.Users).Return([]tablestore.Row{}, nil)
	b.On("Save", ctx, tablestore.Users, mock.Anything).Return(unavailable)

	err := NewRepository(b, nil).Register(ctx, User{UserID: "bob", PasswordHash: "h"})
	assert.ErrorIs(t, err, tablestore.ErrStoreUnavailable)

	b2 := new(failingBackend)
	b2.On("Load", ctx, tablestore.Users).Return(nil, unavailable)
	_, err = NewRepository(b2, nil).Find(ctx, "bob")
	assert.ErrorIs(t, err, tablestore.ErrStoreUnavailable)
}

func TestRegister_ConcurrentDuplicatesStoreOneRow(t *testing.T) {
	ctx := context.Background()
	backend := tablestore.NewXLSX(t.TempDir())
	r := NewRepository(backend, nil)
	require.NoError(t, r.Init(ctx))

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "Alice@X.com"
			if i%2 == 1 {
				id = "alice@x.com"
			}
			errs <- r.Register(ctx, User{UserID: id, PasswordHash: "h"})
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateUser):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)

	rows, err := backend.Load(ctx, tablestore.Users)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
