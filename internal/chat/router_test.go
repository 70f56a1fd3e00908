package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/johndosdos/wschat/internal/mocks"
	"github.com/johndosdos/wschat/internal/model"
	"github.com/johndosdos/wschat/internal/testutil"
)

const fixedTimestamp = "2024-01-02 03:04:05"

var errConnClosed = errors.New("fake conn closed")

type fakeConn struct {
	in     chan model.Frame
	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan model.Frame, 16),
		out:    make(chan string, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(ctx context.Context) (model.Frame, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return model.Frame{}, io.EOF
		}
		return f, nil
	case <-c.closed:
		return model.Frame{}, errConnClosed
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) WriteFrame(ctx context.Context, frame model.Frame) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.out <- string(frame.Data):
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(text string) {
	c.in <- model.TextFrame(text)
}

// brokenWriter accepts reads but fails every write.
type brokenWriter struct {
	*fakeConn
}

func (c brokenWriter) WriteFrame(context.Context, model.Frame) error {
	return errors.New("connection reset by peer")
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newTestRouter(store MessageStore, opts ...Option) *Router {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewRouter(testLogger(), NewRegistry(), store, opts...)
}

type client struct {
	name string
	conn *fakeConn
	errc chan error
}

// join starts a session for name and waits until it is registered.
func join(t *testing.T, router *Router, name string) *client {
	t.Helper()
	return joinWith(t, context.Background(), router, name, newFakeConn())
}

func joinWith(t *testing.T, ctx context.Context, router *Router, name string, conn *fakeConn) *client {
	t.Helper()

	var before *Outbox
	if outbox, ok := router.Registry().Lookup(name); ok {
		before = outbox
	}

	c := &client{name: name, conn: conn, errc: make(chan error, 1)}
	go func() {
		c.errc <- router.Serve(ctx, c.conn)
	}()
	c.conn.send(name)

	require.Eventually(t, func() bool {
		outbox, ok := router.Registry().Lookup(name)
		return ok && outbox != before
	}, 2*time.Second, 5*time.Millisecond, "%s was never registered", name)

	return c
}

func (c *client) leave(t *testing.T) error {
	t.Helper()
	close(c.conn.in)
	select {
	case err := <-c.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session for %s did not end", c.name)
		return nil
	}
}

func (c *client) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-c.conn.out:
		assert.Equal(t, want, got, "frame delivered to %s", c.name)
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not receive %q", c.name, want)
	}
}

func (c *client) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case got := <-c.conn.out:
		t.Fatalf("%s received unexpected frame %q", c.name, got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRouter_Scenario(t *testing.T) {
	store := testutil.NewStore(t)
	router := newTestRouter(store)

	alice := join(t, router, "alice")
	alice.conn.send("hello")
	alice.expect(t, "["+fixedTimestamp+"][alice]: hello")

	bob := join(t, router, "bob")
	carol := join(t, router, "carol")

	alice.conn.send("/msg bob hi")
	bob.expect(t, "["+fixedTimestamp+"][Private from alice to bob]: hi")
	carol.expectNothing(t)
	alice.expectNothing(t)

	records, err := store.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	private, public := records[0], records[1]
	assert.True(t, private.IsPrivate)
	require.NotNil(t, private.ToUser)
	assert.Equal(t, "bob", *private.ToUser)
	assert.Equal(t, "alice", private.FromUser)
	assert.Equal(t, "hi", private.Content)
	assert.Equal(t, fixedTimestamp, private.Timestamp)

	assert.False(t, public.IsPrivate)
	assert.Nil(t, public.ToUser)
	assert.Equal(t, "hello", public.Content)

	for _, c := range []*client{alice, bob, carol} {
		assert.NoError(t, c.leave(t))
	}
}

func TestRouter_BroadcastKeepsSenderOrder(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	const n = 25
	for i := 0; i < n; i++ {
		alice.conn.send(fmt.Sprintf("msg-%02d", i))
	}

	for i := 0; i < n; i++ {
		want := fmt.Sprintf("[%s][alice]: msg-%02d", fixedTimestamp, i)
		alice.expect(t, want)
		bob.expect(t, want)
	}
}

func TestRouter_PrivateToAbsentUser(t *testing.T) {
	store := testutil.NewStore(t)
	router := newTestRouter(store)

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	alice.conn.send("/msg dave are you there?")
	alice.expect(t, "[Error] User 'dave' not found.")
	alice.expectNothing(t)
	bob.expectNothing(t)

	records, err := store.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRouter_MalformedPrivateMessage(t *testing.T) {
	store := testutil.NewStore(t)
	router := newTestRouter(store)

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	for _, text := range []string{"/msg bob", "/msg bob    ", "/msg  bob hi"} {
		alice.conn.send(text)
		alice.expect(t, privateUsage)
	}
	bob.expectNothing(t)

	records, err := store.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRouter_PrivateMessageTrimsTargetAndBody(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	alice.conn.send("/msg bob   see you at noon  ")
	bob.expect(t, "["+fixedTimestamp+"][Private from alice to bob]: see you at noon")
}

func TestRouter_Handshake(t *testing.T) {
	tests := []struct {
		name  string
		first func(c *fakeConn)
	}{
		{"binary_frame", func(c *fakeConn) { c.in <- model.Frame{Type: model.FrameBinary, Data: []byte("alice")} }},
		{"empty_username", func(c *fakeConn) { c.send("") }},
		{"connection_closed", func(c *fakeConn) { close(c.in) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(testutil.NewStore(t))
			conn := newFakeConn()
			tt.first(conn)

			err := router.Serve(context.Background(), conn)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Zero(t, router.Registry().Len())
		})
	}
}

func TestRouter_IgnoresNonTextAndBlankFrames(t *testing.T) {
	store := testutil.NewStore(t)
	router := newTestRouter(store)

	alice := join(t, router, "alice")
	alice.conn.in <- model.Frame{Type: model.FrameBinary, Data: []byte{0x01, 0x02}}
	alice.conn.send("   ")
	alice.conn.send("still here")
	alice.expect(t, "["+fixedTimestamp+"][alice]: still here")
	alice.expectNothing(t)

	records, err := store.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRouter_PersistenceFailureDoesNotBlockDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("disk full")).
		Times(2)

	router := newTestRouter(store)
	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	alice.conn.send("hello")
	alice.expect(t, "["+fixedTimestamp+"][alice]: hello")
	bob.expect(t, "["+fixedTimestamp+"][alice]: hello")

	alice.conn.send("/msg bob psst")
	bob.expect(t, "["+fixedTimestamp+"][Private from alice to bob]: psst")

	require.NoError(t, alice.leave(t))
	require.NoError(t, bob.leave(t))
}

func TestRouter_PersistsBeforeDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)

	router := newTestRouter(store)
	alice := join(t, router, "alice")

	persisted := make(chan struct{})
	store.EXPECT().
		Append(gomock.Any(), model.MessageRecord{FromUser: "alice", Content: "hello", Timestamp: fixedTimestamp}).
		DoAndReturn(func(context.Context, model.MessageRecord) (int64, error) {
			close(persisted)
			return 1, nil
		})

	alice.conn.send("hello")
	alice.expect(t, "["+fixedTimestamp+"][alice]: hello")

	select {
	case <-persisted:
	default:
		t.Fatal("message was delivered before it was persisted")
	}
}

func TestRouter_DuplicateUsernameLastWins(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	first := join(t, router, "alice")
	second := join(t, router, "alice")
	bob := join(t, router, "bob")

	bob.conn.send("/msg alice hi")
	second.expect(t, "["+fixedTimestamp+"][Private from bob to alice]: hi")
	first.expectNothing(t)

	// The replaced session leaving must not evict its successor.
	require.NoError(t, first.leave(t))
	outbox, ok := router.Registry().Lookup("alice")
	require.True(t, ok)
	assert.NotNil(t, outbox)

	bob.conn.send("/msg alice again")
	second.expect(t, "["+fixedTimestamp+"][Private from bob to alice]: again")
}

func TestRouter_TeardownUnregisters(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")
	require.NoError(t, alice.leave(t))

	_, ok := router.Registry().Lookup("alice")
	assert.False(t, ok)

	bob.conn.send("/msg alice too late")
	bob.expect(t, "[Error] User 'alice' not found.")

	require.NoError(t, bob.leave(t))
	require.NoError(t, router.Drain(contextWithTimeout(t)))
}

func TestRouter_WriteFailureEndsSession(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	conn := brokenWriter{newFakeConn()}
	errc := make(chan error, 1)
	go func() {
		errc <- router.Serve(context.Background(), conn)
	}()
	conn.send("alice")
	require.Eventually(t, func() bool {
		_, ok := router.Registry().Lookup("alice")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	conn.send("hello")

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session survived a failed write")
	}

	_, ok := router.Registry().Lookup("alice")
	assert.False(t, ok)
}

func TestRouter_BroadcastSkipsClosedRecipient(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	alice := join(t, router, "alice")
	bob := join(t, router, "bob")

	ghost := NewOutbox()
	ghost.Close()
	router.Registry().Register("ghost", ghost)

	alice.conn.send("still here")
	alice.expect(t, "["+fixedTimestamp+"][alice]: still here")
	bob.expect(t, "["+fixedTimestamp+"][alice]: still here")

	alice.conn.send("/msg ghost boo")
	alice.expectNothing(t)
	bob.expectNothing(t)

	alice.conn.send("after ghost")
	alice.expect(t, "["+fixedTimestamp+"][alice]: after ghost")
	bob.expect(t, "["+fixedTimestamp+"][alice]: after ghost")
}

func TestRouter_RoutingErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	router := newTestRouter(store)
	ctx := contextWithTimeout(t)

	s := &session{username: "alice", outbox: NewOutbox(), log: testLogger()}
	router.Registry().Register("alice", s.outbox)

	storeErr := errors.New("disk full")
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(int64(0), storeErr).Times(2)

	err := router.persist(ctx, model.Public{From: "alice", Content: "hi", Timestamp: fixedTimestamp})
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, storeErr)

	assert.NoError(t, router.persist(ctx, model.System{Content: "not stored"}))

	err = router.deliverPrivate(ctx, s, model.Private{From: "alice", To: "nobody", Content: "hi", Timestamp: fixedTimestamp})
	require.ErrorIs(t, err, ErrTargetAbsent)
	line, ok := s.outbox.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "[Error] User 'nobody' not found.", line)

	ghost := NewOutbox()
	ghost.Close()
	router.Registry().Register("ghost", ghost)

	err = router.deliverPrivate(ctx, s, model.Private{From: "alice", To: "ghost", Content: "hi", Timestamp: fixedTimestamp})
	require.ErrorIs(t, err, ErrDelivery)
	require.ErrorIs(t, err, ErrPersistence)

	err = router.broadcast(model.Public{From: "alice", Content: "hi", Timestamp: fixedTimestamp})
	require.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "1 of 2 recipients")
	assert.Equal(t, 1, s.outbox.Len())

	router.Registry().Unregister("ghost")
	assert.NoError(t, router.broadcast(model.Public{From: "alice", Content: "hi", Timestamp: fixedTimestamp}))
}

func TestRouter_ShutdownFlushesQueuedFrames(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An unbuffered out channel holds the writer on its first frame.
	slow := newFakeConn()
	slow.out = make(chan string)
	alice := joinWith(t, ctx, router, "alice", slow)
	bob := join(t, router, "bob")

	for _, msg := range []string{"one", "two", "three"} {
		bob.conn.send(msg)
	}
	outbox, ok := router.Registry().Lookup("alice")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return outbox.Len() == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	for _, msg := range []string{"one", "two", "three"} {
		alice.expect(t, "["+fixedTimestamp+"][bob]: "+msg)
	}

	select {
	case err := <-alice.errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after shutdown")
	}

	_, ok = router.Registry().Lookup("alice")
	assert.False(t, ok)

	bob.conn.send("/msg alice gone?")
	bob.expect(t, "["+fixedTimestamp+"][bob]: one")
	bob.expect(t, "["+fixedTimestamp+"][bob]: two")
	bob.expect(t, "["+fixedTimestamp+"][bob]: three")
	bob.expect(t, "[Error] User 'alice' not found.")
}

func TestRouter_Sanitizer(t *testing.T) {
	router := newTestRouter(testutil.NewStore(t), WithSanitizer(bluemonday.StrictPolicy()))

	alice := join(t, router, "alice")
	alice.conn.send("<script>alert(1)</script>hi <b>there</b>")
	alice.expect(t, "["+fixedTimestamp+"][alice]: hi there")
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
