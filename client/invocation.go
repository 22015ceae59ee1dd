package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/transport"
	"github.com/bluesky-social/photoapi/xmldoc"
)

// Parameter which, when present (with any value), forces an authenticated call. It is never sent.
const ParamForceAuth = "auth"

// Invocation drives API calls against the REST endpoint of its context, one at a time.
type Invocation struct {
	apiCtx     *apicontext.Context
	delegate   Delegate
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	arrayed    map[string]bool
	usePOST    bool

	mu       sync.Mutex
	req      *transport.Request
	seq      sequencer
	method   string
	userInfo any
}

// Creates an invocation bound to apiCtx. A nil apiCtx uses [apicontext.Default].
func NewInvocation(apiCtx *apicontext.Context, opts ...Option) *Invocation {
	cfg := newConfig(opts)
	if apiCtx == nil {
		apiCtx = apicontext.Default()
	}
	return &Invocation{
		apiCtx:     apiCtx,
		delegate:   cfg.delegate,
		timeout:    cfg.timeout,
		httpClient: cfg.httpClient,
		logger:     cfg.logger,
		arrayed:    cfg.arrayed,
		usePOST:    cfg.usePOST,
		userInfo:   cfg.userInfo,
	}
}

// Starts an API call and returns immediately; the outcome goes to the delegate.
//
// Returns false without contacting the server if the previous call has not delivered its outcome yet, or if the request cannot be built (for example, requireAuth without an auth token). Such failures are logged, and no delegate method is called.
func (inv *Invocation) Call(method string, params apicontext.Params, requireAuth bool) bool {
	return inv.call(method, params, requireAuth, nil)
}

// Like [Invocation.Call], but the terminal outcome goes to cb instead of the delegate. Progress still goes to the delegate.
func (inv *Invocation) CallFunc(method string, params apicontext.Params, requireAuth bool, cb CallbackFunc) bool {
	return inv.call(method, params, requireAuth, cb)
}

func (inv *Invocation) call(method string, params apicontext.Params, requireAuth bool, cb CallbackFunc) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	logger := inv.logger.With("method", method)
	if !inv.seq.ready(inv.req) {
		logger.Warn("invocation already in progress", "current", inv.method)
		return false
	}
	if method == "" {
		logger.Warn("no API method given")
		return false
	}

	all := apicontext.Params{}
	for k, v := range params {
		all[k] = v
	}
	if _, ok := all[ParamForceAuth]; ok {
		delete(all, ParamForceAuth)
		requireAuth = true
	}
	all["method"] = method

	c := &call{inv: inv, method: method, callback: cb, logger: logger, turn: inv.seq.after(inv.req)}
	req := transport.New(c,
		transport.WithTimeout(inv.timeout),
		transport.WithHTTPClient(inv.httpClient),
		transport.WithLogger(logger),
	)

	var started bool
	if inv.usePOST {
		endpoint, err := inv.apiCtx.EndPoint(apicontext.RESTAPIEndPointKey)
		if err != nil {
			logger.Warn("could not build request", "err", err)
			return false
		}
		body, err := inv.apiCtx.PostBody(all, requireAuth, true)
		if err != nil {
			logger.Warn("could not build request", "err", err)
			return false
		}
		started = req.POST(endpoint, body, apicontext.POSTDataSeparator)
	} else {
		u, err := inv.apiCtx.GetURL(all, requireAuth, true)
		if err != nil {
			logger.Warn("could not build request", "err", err)
			return false
		}
		started = req.GET(u)
	}
	if !started {
		return false
	}

	logger.Debug("invocation started", "auth", requireAuth, "post", inv.usePOST)
	inv.req = req
	inv.method = method
	return true
}

// Aborts the call in flight, if any. The outcome is a single [ErrCodeCanceled] failure; nothing else is delivered for that call afterwards.
func (inv *Invocation) Cancel() {
	inv.mu.Lock()
	req := inv.req
	inv.mu.Unlock()
	if req != nil {
		req.Cancel()
	}
}

// Whether no call is in flight.
func (inv *Invocation) IsClosed() bool {
	inv.mu.Lock()
	req := inv.req
	inv.mu.Unlock()
	return req == nil || req.IsClosed()
}

// State of the most recent call; [transport.StateIdle] if none was started.
func (inv *Invocation) State() transport.State {
	inv.mu.Lock()
	req := inv.req
	inv.mu.Unlock()
	if req == nil {
		return transport.StateIdle
	}
	return req.State()
}

// Closed once the most recent call's outcome has been delivered. Returns nil if no call was started.
func (inv *Invocation) Done() <-chan struct{} {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.req == nil {
		return nil
	}
	return inv.req.Done()
}

// Blocks until the most recent call's outcome has been delivered, or ctx is done.
func (inv *Invocation) Wait(ctx context.Context) error {
	inv.mu.Lock()
	req := inv.req
	inv.mu.Unlock()
	if req == nil {
		return nil
	}
	return req.Wait(ctx)
}

// API method of the most recent call.
func (inv *Invocation) Method() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.method
}

func (inv *Invocation) Context() *apicontext.Context {
	return inv.apiCtx
}

// Logger set with [WithLogger], or the package default.
func (inv *Invocation) Logger() *slog.Logger {
	return inv.logger
}

func (inv *Invocation) UserInfo() any {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.userInfo
}

func (inv *Invocation) SetUserInfo(info any) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.userInfo = info
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("Invocation<%s %s>", inv.Method(), inv.State())
}

// call adapts transport notifications for a single API call. Each call gets its own, so a late outcome of an earlier call is never attributed to a newer one.
type call struct {
	inv      *Invocation
	method   string
	callback CallbackFunc
	logger   *slog.Logger
	turn     turn
}

func (c *call) RequestProgress(r *transport.Request, bytes, total int64) {
	c.turn.wait()
	c.inv.delegate.InvocationProgress(c.inv, bytes, total)
}

func (c *call) RequestDidFetch(r *transport.Request, body []byte) {
	c.turn.wait()
	root, apiErr := decodeRoot(body)
	if apiErr != nil {
		c.fail(r, apiErr)
		return
	}
	c.succeed(r, xmldoc.NormalizeDocument(root, c.inv.arrayed))
}

func (c *call) RequestDidFail(r *transport.Request, err error) {
	c.turn.wait()
	c.fail(r, failureError(err))
}

func (c *call) RequestDidTimeout(r *transport.Request) {
	c.turn.wait()
	c.fail(r, &Error{Code: ErrCodeTimeout})
}

func (c *call) RequestDidCancel(r *transport.Request) {
	c.turn.wait()
	c.fail(r, &Error{Code: ErrCodeCanceled})
}

func (c *call) succeed(r *transport.Request, doc xmldoc.Document) {
	invocationOutcomes.WithLabelValues("call", "ok").Inc()
	invocationDuration.WithLabelValues("call", "ok").Observe(r.Elapsed().Seconds())
	c.logger.Debug("invocation finished", "duration", r.Elapsed())

	c.inv.seq.deliver(r, func() {
		if c.callback != nil {
			c.callback(c.inv, 0, doc)
			return
		}
		c.inv.delegate.InvocationDidFetch(c.inv, doc)
	})
}

func (c *call) fail(r *transport.Request, err *Error) {
	outcome := err.outcome()
	invocationOutcomes.WithLabelValues("call", outcome).Inc()
	invocationDuration.WithLabelValues("call", outcome).Observe(r.Elapsed().Seconds())
	if err.Code != ErrCodeCanceled {
		c.logger.Info("invocation failed", "code", err.Code, "err", err)
	}

	c.inv.seq.deliver(r, func() {
		if c.callback != nil {
			var data any
			if err.IsRemote() {
				data = err.Message
			} else if err.Err != nil {
				data = err.Err
			}
			c.callback(c.inv, err.Code, data)
			return
		}
		c.inv.delegate.InvocationDidFail(c.inv, err)
	})
}
