package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/internal/testapi"
	"github.com/bluesky-social/photoapi/transport"
	"github.com/bluesky-social/photoapi/xmldoc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invRecorder struct {
	mu        sync.Mutex
	docs      []xmldoc.Document
	errs      []*Error
	progress  [][2]int64
	firstData chan struct{}
	once      sync.Once
}

func newInvRecorder() *invRecorder {
	return &invRecorder{firstData: make(chan struct{})}
}

func (rec *invRecorder) InvocationDidFetch(inv *Invocation, doc xmldoc.Document) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.docs = append(rec.docs, doc)
}

func (rec *invRecorder) InvocationDidFail(inv *Invocation, err *Error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.errs = append(rec.errs, err)
}

func (rec *invRecorder) InvocationProgress(inv *Invocation, received, total int64) {
	rec.mu.Lock()
	rec.progress = append(rec.progress, [2]int64{received, total})
	rec.mu.Unlock()
	rec.once.Do(func() { close(rec.firstData) })
}

func (rec *invRecorder) outcomes() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.docs) + len(rec.errs)
}

func wait(t *testing.T, w interface{ Wait(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
}

func TestInvocationFetch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	assert.True(inv.IsClosed())
	assert.Equal(transport.StateIdle, inv.State())
	assert.Nil(inv.Done())

	require.True(inv.Call("flickr.photos.getInfo", apicontext.Params{"photo_id": "2048"}, false))
	wait(t, inv)

	require.Len(rec.docs, 1)
	assert.Empty(rec.errs)
	photo := rec.docs[0].Path("rsp", "photo")
	require.NotNil(photo)
	assert.Equal("2048", photo.Attr("id"))
	assert.Equal("Cat", photo.Doc("title").Text())
	assert.Equal("ok", rec.docs[0].Doc("rsp").Attr("stat"))
	assert.NotEmpty(rec.progress)
	assert.Equal(transport.StateCompleted, inv.State())
	assert.Equal("flickr.photos.getInfo", inv.Method())
	assert.True(inv.IsClosed())
}

func TestInvocationSignsAndAuthenticates(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))

	// auth forced by the presence of the "auth" parameter, even with a nil value
	require.True(inv.Call("flickr.test.echo", apicontext.Params{"auth": nil, "foo": "bar"}, false))
	wait(t, inv)
	require.Len(rec.docs, 1)
	echo := rec.docs[0].Doc("rsp")
	assert.Equal("bar", echo.Doc("foo").Text())
	assert.Equal(testapi.AuthToken, echo.Doc("auth_token").Text())
	assert.NotEmpty(echo.Doc("api_sig").Text())
	assert.Nil(echo.Doc("auth"), "the force-auth marker is never sent")

	require.True(inv.Call("flickr.test.login", nil, true))
	wait(t, inv)
	require.Len(rec.docs, 2)
	assert.Equal("Bees", rec.docs[1].Path("rsp", "user", "username").Text())

	// unauthenticated calls are still signed, but carry no token
	require.True(inv.Call("flickr.test.echo", nil, false))
	wait(t, inv)
	require.Len(rec.docs, 3)
	echo = rec.docs[2].Doc("rsp")
	assert.Nil(echo.Doc("auth_token"))
	assert.NotEmpty(echo.Doc("api_sig").Text())
}

func TestInvocationPOST(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec), WithPOST())
	require.True(inv.Call("flickr.test.login", nil, true))
	wait(t, inv)
	require.Len(rec.docs, 1)
	assert.Equal("Bees", rec.docs[0].Path("rsp", "user", "username").Text())
	assert.NotEmpty(rec.progress, "send progress is reported for POST calls")
}

func TestInvocationRemoteError(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(inv.Call("flickr.photos.getInfo", apicontext.Params{"photo_id": "404"}, false))
	wait(t, inv)

	assert.Empty(rec.docs)
	require.Len(rec.errs, 1)
	err := rec.errs[0]
	assert.Equal(1, err.Code)
	assert.Equal("Photo not found", err.Message)
	assert.True(err.IsRemote())
	assert.EqualError(err, "API error 1: Photo not found")

	// the transport finished fine; only the API failed
	assert.Equal(transport.StateCompleted, inv.State())
}

func TestInvocationMalformed(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(t, inv.Call("test.garbage", nil, false))
	wait(t, inv)

	require.Len(t, rec.errs, 1)
	assert.Equal(ErrCodeMalformed, rec.errs[0].Code)
	assert.ErrorIs(rec.errs[0], ErrMalformed)
	assert.ErrorIs(rec.errs[0], xmldoc.ErrMalformed)
	assert.Empty(rec.docs)
}

func TestInvocationHTTPStatus(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(t, inv.Call("test.status", nil, false))
	wait(t, inv)

	require.Len(t, rec.errs, 1)
	err := rec.errs[0]
	assert.Equal(ErrCodeConnection, err.Code)
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(503, se.StatusCode)
}

func TestInvocationConnectionError(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	apiCtx := srv.Context()
	srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(apiCtx, WithDelegate(rec))
	require.True(t, inv.Call("flickr.test.echo", nil, false))
	wait(t, inv)

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(rec.errs[0], ErrConnection)
	assert.False(errors.Is(rec.errs[0], ErrTimeout))
}

func TestInvocationTimeout(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec), WithTimeout(100*time.Millisecond))
	start := time.Now()
	require.True(t, inv.Call("test.hang", nil, false))
	wait(t, inv)

	assert.GreaterOrEqual(time.Since(start), 100*time.Millisecond)
	require.Len(t, rec.errs, 1)
	assert.Equal(ErrCodeTimeout, rec.errs[0].Code)
	assert.Equal(1, rec.outcomes())
	assert.Equal(transport.StateTimedOut, inv.State())
}

func TestInvocationCancelBeforeData(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(t, inv.Call("test.hang", nil, false))
	assert.False(inv.IsClosed())
	inv.Cancel()
	inv.Cancel()
	wait(t, inv)

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(rec.errs[0], ErrCanceled)
	assert.Empty(rec.progress)
	assert.Empty(rec.docs)
	assert.True(inv.IsClosed())
}

func TestInvocationCancelAfterPartialData(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(t, inv.Call("test.drip", nil, false))

	select {
	case <-rec.firstData:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress received")
	}
	inv.Cancel()
	rec.mu.Lock()
	seen := len(rec.progress)
	rec.mu.Unlock()
	wait(t, inv)

	require.Len(t, rec.errs, 1)
	assert.Equal(ErrCodeCanceled, rec.errs[0].Code)
	assert.Empty(rec.docs)
	assert.Equal(seen, len(rec.progress))
	assert.Equal(int64(4096), rec.progress[0][1])
}

func TestInvocationRejectsConcurrentCall(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec))
	require.True(t, inv.Call("test.hang", nil, false))
	assert.False(inv.Call("flickr.test.echo", nil, false))
	assert.Equal("test.hang", inv.Method())

	inv.Cancel()
	wait(t, inv)
	assert.Equal(1, rec.outcomes())

	// reusable once finished
	assert.True(inv.Call("flickr.test.echo", nil, false))
	wait(t, inv)
	assert.Equal(2, rec.outcomes())
	assert.Len(rec.docs, 1)
}

func TestInvocationPreconditions(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	noToken := apicontext.New(testapi.APIKey, testapi.Secret)
	noToken.SetEndPoints(srv.EndPoints())
	inv := NewInvocation(noToken, WithDelegate(rec))
	assert.False(inv.Call("flickr.test.login", nil, true))
	assert.False(inv.Call("flickr.test.echo", apicontext.Params{"auth": true}, false))
	assert.False(inv.Call("", nil, false))
	assert.False(inv.Call("flickr.test.echo", apicontext.Params{"bad": map[string]int{}}, false))
	assert.True(inv.IsClosed())

	noEndpoint := apicontext.New(testapi.APIKey, testapi.Secret)
	noEndpoint.SetEndPoints(map[string]string{})
	assert.False(NewInvocation(noEndpoint).Call("flickr.test.echo", nil, false))
	assert.Equal(0, rec.outcomes())
}

func TestInvocationCallFunc(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	type result struct {
		code int
		data any
	}
	results := make(chan result, 1)
	cb := func(inv *Invocation, code int, data any) {
		results <- result{code, data}
	}

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec), WithUserInfo("tag"))
	assert.Equal("tag", inv.UserInfo())

	require.True(inv.CallFunc("flickr.auth.getFrob", nil, false, cb))
	res := <-results
	assert.Equal(0, res.code)
	doc, ok := res.data.(xmldoc.Document)
	require.True(ok)
	assert.Equal(testapi.Frob, doc.Path("rsp", "frob").Text())
	wait(t, inv)

	require.True(inv.CallFunc("flickr.photos.getInfo", apicontext.Params{"photo_id": "404"}, false, cb))
	res = <-results
	assert.Equal(1, res.code)
	assert.Equal("Photo not found", res.data)
	wait(t, inv)

	require.True(inv.CallFunc("test.hang", nil, false, cb))
	inv.Cancel()
	res = <-results
	assert.Equal(ErrCodeCanceled, res.code)
	assert.Nil(res.data)
	wait(t, inv)

	require.True(inv.CallFunc("test.garbage", nil, false, cb))
	res = <-results
	assert.Equal(ErrCodeMalformed, res.code)
	assert.ErrorIs(res.data.(error), xmldoc.ErrMalformed)
	wait(t, inv)

	// terminal outcomes went to the callback, progress still went to the delegate
	assert.Equal(0, rec.outcomes())
	assert.NotEmpty(rec.progress)
}

func TestInvocationArrayedTags(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newInvRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec), WithArrayedTags("photo"))
	require.True(inv.Call("flickr.photos.search", apicontext.Params{"per_page": 1, "tags": []string{"cat", "dog"}}, false))
	wait(t, inv)

	require.Len(rec.docs, 1)
	photos, ok := rec.docs[0].Path("rsp", "photos")["photo"].([]xmldoc.Document)
	require.True(ok)
	require.Len(photos, 1)
	assert.Equal("cat,dog", photos[0].Attr("title"))
}

func TestInvocationChainsFromCallback(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	done := make(chan string, 1)
	inv := NewInvocation(srv.Context())
	started := inv.CallFunc("flickr.auth.getFrob", nil, false, func(inv *Invocation, code int, data any) {
		frob := data.(xmldoc.Document).Path("rsp", "frob").Text()
		ok := inv.CallFunc("flickr.auth.getToken", apicontext.Params{"frob": frob}, false, func(inv *Invocation, code int, data any) {
			done <- data.(xmldoc.Document).Path("rsp", "auth", "token").Text()
		})
		assert.True(ok)
	})
	require.True(t, started)

	select {
	case token := <-done:
		assert.Equal(testapi.AuthToken, token)
	case <-time.After(5 * time.Second):
		t.Fatal("chained call did not finish")
	}
}

// Records the order of delegate callbacks and how many overlap. The first failure blocks until released.
type overlapRecorder struct {
	mu        sync.Mutex
	events    []string
	active    int
	maxActive int

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newOverlapRecorder() *overlapRecorder {
	return &overlapRecorder{entered: make(chan struct{}), release: make(chan struct{})}
}

func (rec *overlapRecorder) enter(ev string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.active++
	rec.maxActive = max(rec.maxActive, rec.active)
	if ev != "progress" {
		rec.events = append(rec.events, ev)
	}
}

func (rec *overlapRecorder) leave() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.active--
}

func (rec *overlapRecorder) seen() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.events...)
}

func (rec *overlapRecorder) InvocationDidFetch(inv *Invocation, doc xmldoc.Document) {
	rec.enter("fetch")
	defer rec.leave()
}

func (rec *overlapRecorder) InvocationDidFail(inv *Invocation, err *Error) {
	rec.enter("fail")
	defer rec.leave()
	first := false
	rec.once.Do(func() {
		first = true
		close(rec.entered)
	})
	if first {
		<-rec.release
	}
}

func (rec *overlapRecorder) InvocationProgress(inv *Invocation, received, total int64) {
	rec.enter("progress")
	defer rec.leave()
}

func TestInvocationNotificationsNeverOverlap(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	rec := newOverlapRecorder()
	inv := NewInvocation(srv.Context(), WithDelegate(rec), WithTimeout(50*time.Millisecond))
	require.True(inv.Call("test.hang", nil, false))

	select {
	case <-rec.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no timeout delivered")
	}

	// the timeout is being delivered, so a follow-up call is accepted, but its notifications wait
	require.True(inv.Call("flickr.photos.getInfo", apicontext.Params{"photo_id": "2048"}, false))
	time.Sleep(100 * time.Millisecond)
	assert.Equal([]string{"fail"}, rec.seen())

	close(rec.release)
	wait(t, inv)

	assert.Equal([]string{"fail", "fetch"}, rec.seen())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(1, rec.maxActive)
}

// Blocks inside the first progress notification until released.
type progressGate struct {
	NopDelegate
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	fails   atomic.Int32
}

func newProgressGate() *progressGate {
	return &progressGate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *progressGate) InvocationProgress(inv *Invocation, received, total int64) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
}

func (g *progressGate) InvocationDidFail(inv *Invocation, err *Error) {
	g.fails.Add(1)
}

func TestInvocationRejectsCallUntilOutcomeDelivered(t *testing.T) {
	assert := assert.New(t)
	srv := testapi.NewServer()
	defer srv.Close()

	g := newProgressGate()
	inv := NewInvocation(srv.Context(), WithDelegate(g))
	require.True(t, inv.Call("test.drip", nil, false))

	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress received")
	}
	inv.Cancel()
	assert.Equal(transport.StateCanceled, inv.State())

	// finished, but the cancel notification is still queued behind the progress callback
	assert.False(inv.Call("flickr.test.echo", nil, false))
	assert.Equal(int32(0), g.fails.Load())

	close(g.release)
	wait(t, inv)
	assert.Equal(int32(1), g.fails.Load())

	assert.True(inv.Call("flickr.test.echo", nil, false))
	wait(t, inv)
	assert.Equal("flickr.test.echo", inv.Method())
}

func TestErrorIs(t *testing.T) {
	assert := assert.New(t)

	err := &Error{Code: ErrCodeTimeout}
	assert.ErrorIs(err, ErrTimeout)
	assert.NotErrorIs(err, ErrCanceled)
	assert.EqualError(err, "request timed out")

	remote := &Error{Code: 98, Message: "Invalid auth token"}
	assert.NotErrorIs(remote, ErrConnection)
	assert.True(remote.IsRemote())

	wrapped := &Error{Code: ErrCodeConnection, Err: context.DeadlineExceeded}
	assert.ErrorIs(wrapped, context.DeadlineExceeded)
	assert.ErrorIs(wrapped, ErrConnection)
}
