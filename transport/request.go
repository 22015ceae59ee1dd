package transport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluesky-social/photoapi/pkg/env"
	"github.com/bluesky-social/photoapi/pkg/robusthttp"
)

const (
	// Default fixed deadline for a request, measured from start.
	DefaultTimeout = 10 * time.Second

	// Progress total when the response carries no Content-Length.
	UnknownTotal int64 = -1

	readChunkSize = 16 * 1024
	eventBuffer   = 64
)

type Option func(*Request)

func WithTimeout(d time.Duration) Option {
	return func(r *Request) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Request) {
		if c != nil {
			r.client = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Request) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(r *Request) {
		r.userAgent = ua
	}
}

// Content-Type header value for a multipart body delimited by boundary.
func MultipartContentType(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}

type progressEvent struct {
	bytes int64
	total int64
}

// Request is one HTTP exchange. Create with [New]; start with GET or POST.
type Request struct {
	client    *http.Client
	delegate  Delegate
	timeout   time.Duration
	logger    *slog.Logger
	userAgent string

	mu      sync.Mutex
	state   State
	method  string
	url     string
	cancel  context.CancelFunc
	timer   *time.Timer
	body    []byte
	err     error
	started time.Time

	// set on cancel/timeout: progress still queued must not be delivered.
	// Guarded by deliverMu so the check and the handoff to the delegate are atomic with respect to it.
	deliverMu sync.Mutex
	suppress  bool

	events   chan progressEvent
	finished chan struct{}
	done     chan struct{}

	sent       atomic.Int64
	received   atomic.Int64
	total      atomic.Int64
	statusCode atomic.Int32
}

// Creates an idle request. A nil delegate is replaced with [NopDelegate].
func New(delegate Delegate, opts ...Option) *Request {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	r := &Request{
		delegate:  delegate,
		timeout:   DefaultTimeout,
		logger:    slog.Default().With("subsystem", "transport"),
		userAgent: env.UserAgent(),
		events:    make(chan progressEvent, eventBuffer),
		finished:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.total.Store(UnknownTotal)
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = robusthttp.NewNoRetryClient()
	}
	return r
}

// Starts a GET request. Returns false if the request is not idle or the URL is invalid.
func (r *Request) GET(rawURL string) bool {
	return r.start(http.MethodGet, rawURL, nil, "")
}

// Starts a POST of a multipart/form-data body delimited by boundary. Returns false if the request is not idle or the URL is invalid.
func (r *Request) POST(rawURL string, body []byte, boundary string) bool {
	return r.start(http.MethodPost, rawURL, body, boundary)
}

func (r *Request) start(method, rawURL string, body []byte, boundary string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	var reqBody io.Reader
	if method == http.MethodPost {
		r.total.Store(int64(len(body)))
		reqBody = &progressReader{r: bytes.NewReader(body), onRead: r.bodyRead}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		cancel()
		r.logger.Warn("could not build request", "method", method, "err", err)
		return false
	}
	if method == http.MethodPost {
		req.ContentLength = int64(len(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(&progressReader{r: bytes.NewReader(body), onRead: r.bodyRead}), nil
		}
		if boundary != "" {
			req.Header.Set("Content-Type", MultipartContentType(boundary))
		} else {
			req.Header.Set("Content-Type", "application/octet-stream")
		}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	r.method = method
	r.url = rawURL
	r.cancel = cancel
	r.started = time.Now()
	r.setState(StateConnecting)
	r.timer = time.AfterFunc(r.timeout, func() {
		r.finish(StateTimedOut, nil, nil)
	})

	go r.dispatch()
	go r.run(req)
	return true
}

// must hold r.mu
func (r *Request) setState(s State) {
	r.logger.Debug("request state", "method", r.method, "url", r.url, "from", r.state, "to", s)
	r.state = s
}

func (r *Request) run(req *http.Request) {
	resp, err := r.client.Do(req)
	if err != nil {
		r.finish(StateFailed, nil, err)
		return
	}
	defer resp.Body.Close()

	r.statusCode.Store(int32(resp.StatusCode))
	total := resp.ContentLength
	if total < 0 {
		total = UnknownTotal
	}
	r.markTransferring()

	// for POST the progress reported so far was upload progress; from here on it is the response
	var buf bytes.Buffer
	if req.Method == http.MethodGet {
		r.total.Store(total)
	}
	chunk := make([]byte, readChunkSize)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			received := r.received.Add(int64(n))
			if req.Method == http.MethodGet {
				r.emitProgress(received, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			r.finish(StateFailed, nil, err)
			return
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.finish(StateFailed, nil, &StatusError{StatusCode: resp.StatusCode, Body: buf.Bytes()})
		return
	}
	r.finish(StateCompleted, buf.Bytes(), nil)
}

// Called from the HTTP transport's writer as the POST body is consumed.
func (r *Request) bodyRead(n int) {
	r.markTransferring()
	sent := r.sent.Add(int64(n))
	r.emitProgress(sent, r.total.Load())
}

func (r *Request) markTransferring() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateConnecting {
		r.setState(StateTransferring)
	}
}

func (r *Request) emitProgress(bytes, total int64) {
	if r.suppressed() {
		return
	}
	select {
	case r.events <- progressEvent{bytes: bytes, total: total}:
	case <-r.finished:
	}
}

// Moves to a terminal state. Only the first call has any effect; returns whether this call won.
func (r *Request) finish(s State, body []byte, err error) bool {
	r.mu.Lock()
	if !r.state.Active() {
		r.mu.Unlock()
		return false
	}
	if s == StateCanceled || s == StateTimedOut {
		r.deliverMu.Lock()
		r.suppress = true
		r.deliverMu.Unlock()
	}
	r.setState(s)
	r.body = body
	r.err = err
	if r.timer != nil {
		r.timer.Stop()
	}
	cancel := r.cancel
	close(r.finished)
	r.mu.Unlock()

	// tears down the connection, if any is still open
	cancel()
	return true
}

func (r *Request) dispatch() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.events:
			r.deliverProgress(ev)
		case <-r.finished:
		drain:
			for {
				select {
				case ev := <-r.events:
					r.deliverProgress(ev)
				default:
					break drain
				}
			}
			r.deliverTerminal()
			return
		}
	}
}

func (r *Request) suppressed() bool {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	return r.suppress
}

// A progress notification is either committed before the request was canceled or timed out, or never made. The delegate runs outside deliverMu, so it may call Cancel.
func (r *Request) deliverProgress(ev progressEvent) {
	r.deliverMu.Lock()
	if r.suppress {
		r.deliverMu.Unlock()
		return
	}
	r.deliverMu.Unlock()

	r.delegate.RequestProgress(r, ev.bytes, ev.total)
}

func (r *Request) deliverTerminal() {
	r.mu.Lock()
	state, body, err := r.state, r.body, r.err
	r.mu.Unlock()

	switch state {
	case StateCompleted:
		r.delegate.RequestDidFetch(r, body)
	case StateFailed:
		r.delegate.RequestDidFail(r, err)
	case StateTimedOut:
		r.delegate.RequestDidTimeout(r)
	case StateCanceled:
		r.delegate.RequestDidCancel(r)
	}
}

// Tears down an open connection and delivers a single cancel notification. Does nothing if the request is idle or already finished.
func (r *Request) Cancel() {
	r.finish(StateCanceled, nil, nil)
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Whether no connection is open (idle or finished).
func (r *Request) IsClosed() bool {
	return !r.State().Active()
}

// Closed once the terminal notification has been delivered (and the delegate method has returned).
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Blocks until the terminal notification has been delivered, or ctx is done. Must not be called for a request that was never started.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Request) Method() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method
}

func (r *Request) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// Time elapsed since start, or zero if never started.
func (r *Request) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return time.Since(r.started)
}

func (r *Request) BytesSent() int64 {
	return r.sent.Load()
}

func (r *Request) BytesReceived() int64 {
	return r.received.Load()
}

// HTTP status of the response, or zero if none was received.
func (r *Request) StatusCode() int {
	return int(r.statusCode.Load())
}
