package worker

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/docstore"
	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/pkg/crypt"
)

type fakeAdmin struct {
	names   []string
	created int
}

func (f *fakeAdmin) StreamNames(_ context.Context) ([]string, error) {
	return append([]string(nil), f.names...), nil
}

func (f *fakeAdmin) EnsureStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created++
	f.names = append(f.names, cfg.Name)
	return nil, nil
}

type fakeConsumers struct {
	mu       sync.Mutex
	attached []string
	handlers map[string]func([]byte)
	failAt   int // 1-based call index to fail on; 0 never fails
	calls    int
	stopped  bool
}

func (f *fakeConsumers) ConsumeStream(_ context.Context, _, _, durable string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return stderrors.New("consumer create failed")
	}
	f.attached = append(f.attached, durable)
	if f.handlers == nil {
		f.handlers = map[string]func([]byte){}
	}
	f.handlers[durable] = handler
	return nil
}

func (f *fakeConsumers) StopConsumers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeConsumers) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeConsumers) deliver(t *testing.T, durable string, record eventlog.Record) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[durable]
	f.mu.Unlock()
	require.True(t, ok, "no handler attached for %s", durable)

	data, err := record.Encode()
	require.NoError(t, err)
	handler(data)
}

type fakeCloser struct {
	err      error
	closed   bool
	observed func()
}

func (f *fakeCloser) Close(_ context.Context) error {
	f.closed = true
	if f.observed != nil {
		f.observed()
	}
	return f.err
}

type testRig struct {
	orchestrator *Orchestrator
	admin        *fakeAdmin
	consumers    *fakeConsumers
	store        *docstore.Store
	gate         *crypt.Gate
}

func newTestRig(t *testing.T, batchSize int, closers ...Closer) *testRig {
	t.Helper()
	t.Setenv(crypt.DefaultKeyEnv, "worker-test-secret")

	store := docstore.NewStore(config.DocStoreConfig{
		Driver:       config.DocStoreDriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))

	topicsCfg := config.TopicsConfig{
		Root:        "wb",
		Retention:   config.Duration(24 * time.Hour),
		Replicas:    1,
		DedupWindow: config.Duration(2 * time.Minute),
	}
	admin := &fakeAdmin{}
	consumers := &fakeConsumers{}
	gate := crypt.New("")

	orchestrator, err := New(Options{
		Registry:    eventlog.NewRegistry(admin, topicsCfg, nil),
		Consumers:   consumers,
		Store:       store,
		Gate:        gate,
		Topics:      topicsCfg,
		Batch:       config.BatchConfig{Size: batchSize, Timeout: config.Duration(time.Hour)},
		Connections: closers,
	})
	require.NoError(t, err)

	return &testRig{
		orchestrator: orchestrator,
		admin:        admin,
		consumers:    consumers,
		store:        store,
		gate:         gate,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestStart_AttachesWorkersInDependencyOrder(t *testing.T) {
	rig := newTestRig(t, 500)

	require.NoError(t, rig.orchestrator.Start(context.Background()))
	assert.True(t, rig.orchestrator.Running())
	assert.Equal(t, 9, rig.admin.created, "topic set provisioned first")

	assert.Equal(t, []string{
		"wb-user-create-workers", "wb-brand-create-workers", "wb-product-create-workers",
		"wb-user-update-workers", "wb-brand-update-workers", "wb-product-update-workers",
		"wb-product-delete-workers", "wb-brand-delete-workers", "wb-user-delete-workers",
	}, rig.consumers.attached)
	assert.Len(t, rig.orchestrator.Accumulators(), 9)
}

func TestStart_Twice(t *testing.T) {
	rig := newTestRig(t, 500)
	ctx := context.Background()

	require.NoError(t, rig.orchestrator.Start(ctx))
	err := rig.orchestrator.Start(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestStart_RollsBackOnConsumerFailure(t *testing.T) {
	rig := newTestRig(t, 500)
	rig.consumers.failAt = 4

	err := rig.orchestrator.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInfrastructure(err))
	assert.False(t, rig.orchestrator.Running())
	assert.True(t, rig.consumers.isStopped(), "partially attached consumers are detached")
	assert.Empty(t, rig.orchestrator.Accumulators())

	t.Run("start succeeds after the fault clears", func(t *testing.T) {
		rig.consumers.failAt = 0
		assert.NoError(t, rig.orchestrator.Start(context.Background()))
	})
}

func TestStop_OrderAndErrorCollection(t *testing.T) {
	producer := &fakeCloser{err: stderrors.New("drain timed out")}
	admin := &fakeCloser{}
	rig := newTestRig(t, 500, producer, admin)
	producer.observed = func() {
		assert.True(t, rig.consumers.isStopped(), "consumers detach before connections close")
	}

	require.NoError(t, rig.orchestrator.Start(context.Background()))

	err := rig.orchestrator.Stop(time.Second)
	require.Error(t, err, "connection close failures are collected")
	assert.Contains(t, err.Error(), "drain timed out")
	assert.True(t, producer.closed)
	assert.True(t, admin.closed, "later connections still close after an earlier failure")
	assert.False(t, rig.orchestrator.Running())

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, rig.orchestrator.Stop(time.Second))
	})
}

func TestStop_DropsUnflushedRecords(t *testing.T) {
	rig := newTestRig(t, 500)
	ctx := context.Background()

	require.NoError(t, rig.orchestrator.Start(ctx))

	sealed, err := rig.gate.Seal(&entity.User{ID: "usr001abc", Email: "a@example.com"})
	require.NoError(t, err)
	rig.consumers.deliver(t, "wb-user-create-workers",
		eventlog.NewRecord("usr001abc", entity.OpCreate, sealed))

	require.NoError(t, rig.orchestrator.Stop(time.Second))

	exists, err := docstore.NewUserRepository(rig.store).Exists(ctx, "usr001abc")
	require.NoError(t, err)
	assert.False(t, exists, "buffered records are dropped, not flushed, at shutdown")
}

func TestDelivery_CreateUpdateDeleteRoundTrip(t *testing.T) {
	rig := newTestRig(t, 2) // size trigger after every second record
	ctx := context.Background()
	require.NoError(t, rig.orchestrator.Start(ctx))

	users := docstore.NewUserRepository(rig.store)

	seal := func(v any) string {
		sealed, err := rig.gate.Seal(v)
		require.NoError(t, err)
		return sealed
	}

	// Two creates hit the size trigger and land in the document store.
	rig.consumers.deliver(t, "wb-user-create-workers", eventlog.NewRecord(
		"usr001aaa", entity.OpCreate,
		seal(&entity.User{ID: "usr001aaa", Email: "a@example.com", FirstName: "Ada"})))
	rig.consumers.deliver(t, "wb-user-create-workers", eventlog.NewRecord(
		"usr002bbb", entity.OpCreate,
		seal(&entity.User{ID: "usr002bbb", Email: "b@example.com", FirstName: "Bo"})))

	created, err := users.GetByID(ctx, "usr001aaa")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", created.Email)

	// Two field-level updates: only the email column moves.
	email1, email2 := "a2@example.com", "b2@example.com"
	rig.consumers.deliver(t, "wb-user-update-workers", eventlog.NewRecord(
		"usr001aaa", entity.OpUpdate, seal(entity.UserPatch{Email: &email1})))
	rig.consumers.deliver(t, "wb-user-update-workers", eventlog.NewRecord(
		"usr002bbb", entity.OpUpdate, seal(entity.UserPatch{Email: &email2})))

	updated, err := users.GetByID(ctx, "usr001aaa")
	require.NoError(t, err)
	assert.Equal(t, "a2@example.com", updated.Email)
	assert.Equal(t, "Ada", updated.FirstName, "columns absent from the patch stay put")
	assert.NotZero(t, updated.UpdatedAt)

	// Two deletes empty the table.
	rig.consumers.deliver(t, "wb-user-delete-workers",
		eventlog.NewRecord("usr001aaa", entity.OpDelete, ""))
	rig.consumers.deliver(t, "wb-user-delete-workers",
		eventlog.NewRecord("usr002bbb", entity.OpDelete, ""))

	_, err = users.GetByID(ctx, "usr001aaa")
	assert.True(t, errors.IsNotFound(err))
	_, err = users.GetByID(ctx, "usr002bbb")
	assert.True(t, errors.IsNotFound(err))
}
