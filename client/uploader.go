package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/transport"
)

// Uploader sends photos to the upload endpoint of its context, one at a time.
type Uploader struct {
	apiCtx     *apicontext.Context
	delegate   UploadDelegate
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	req      *transport.Request
	seq      sequencer
	filename string
	userInfo any
}

// Creates an uploader bound to apiCtx. A nil apiCtx uses [apicontext.Default].
func NewUploader(apiCtx *apicontext.Context, opts ...Option) *Uploader {
	cfg := newConfig(opts)
	if apiCtx == nil {
		apiCtx = apicontext.Default()
	}
	return &Uploader{
		apiCtx:     apiCtx,
		delegate:   cfg.uploadDelegate,
		timeout:    cfg.timeout,
		httpClient: cfg.httpClient,
		logger:     cfg.logger,
		userInfo:   cfg.userInfo,
	}
}

// Starts uploading data as filename, with the photo metadata in info ("title", "description", "tags", "is_public", "is_friend", "is_family"; "async" requests a ticket instead of a photo ID). Returns immediately; the outcome goes to the delegate.
//
// Returns false without contacting the server if the previous upload has not delivered its outcome yet, or if the body cannot be built. Uploads always require an auth token.
func (up *Uploader) Upload(data []byte, filename string, info apicontext.Params) bool {
	up.mu.Lock()
	defer up.mu.Unlock()

	logger := up.logger.With("filename", filename)
	if !up.seq.ready(up.req) {
		logger.Warn("upload already in progress", "current", up.filename)
		return false
	}

	endpoint, err := up.apiCtx.UploadURL()
	if err != nil {
		logger.Warn("could not build upload", "err", err)
		return false
	}
	body, err := up.apiCtx.UploadBody(data, filename, info)
	if err != nil {
		logger.Warn("could not build upload", "err", err)
		return false
	}

	u := &upload{up: up, logger: logger, turn: up.seq.after(up.req)}
	req := transport.New(u,
		transport.WithTimeout(up.timeout),
		transport.WithHTTPClient(up.httpClient),
		transport.WithLogger(logger),
	)
	if !req.POST(endpoint, body, apicontext.POSTDataSeparator) {
		return false
	}

	logger.Debug("upload started", "size", len(data), "body_size", len(body))
	up.req = req
	up.filename = filename
	return true
}

// Reads path and uploads it under its base name.
func (up *Uploader) UploadFile(path string, info apicontext.Params) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		up.logger.Warn("could not read upload file", "path", path, "err", err)
		return false
	}
	return up.Upload(data, filepath.Base(path), info)
}

// Aborts the upload in flight, if any. The delegate gets a single UploadDidCancel.
func (up *Uploader) Cancel() {
	up.mu.Lock()
	req := up.req
	up.mu.Unlock()
	if req != nil {
		req.Cancel()
	}
}

func (up *Uploader) IsClosed() bool {
	up.mu.Lock()
	req := up.req
	up.mu.Unlock()
	return req == nil || req.IsClosed()
}

func (up *Uploader) State() transport.State {
	up.mu.Lock()
	req := up.req
	up.mu.Unlock()
	if req == nil {
		return transport.StateIdle
	}
	return req.State()
}

func (up *Uploader) Done() <-chan struct{} {
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.req == nil {
		return nil
	}
	return up.req.Done()
}

func (up *Uploader) Wait(ctx context.Context) error {
	up.mu.Lock()
	req := up.req
	up.mu.Unlock()
	if req == nil {
		return nil
	}
	return req.Wait(ctx)
}

// Name of the most recent upload.
func (up *Uploader) Filename() string {
	up.mu.Lock()
	defer up.mu.Unlock()
	return up.filename
}

func (up *Uploader) Context() *apicontext.Context {
	return up.apiCtx
}

func (up *Uploader) UserInfo() any {
	up.mu.Lock()
	defer up.mu.Unlock()
	return up.userInfo
}

func (up *Uploader) SetUserInfo(info any) {
	up.mu.Lock()
	defer up.mu.Unlock()
	up.userInfo = info
}

func (up *Uploader) String() string {
	return fmt.Sprintf("Uploader<%s %s>", up.Filename(), up.State())
}

type upload struct {
	up     *Uploader
	logger *slog.Logger
	turn   turn
}

func (u *upload) RequestProgress(r *transport.Request, bytes, total int64) {
	u.turn.wait()
	u.up.delegate.UploadProgress(u.up, bytes, total)
}

func (u *upload) RequestDidFetch(r *transport.Request, body []byte) {
	u.turn.wait()
	root, apiErr := decodeRoot(body)
	if apiErr != nil {
		u.fail(r, apiErr)
		return
	}
	var id string
	if n := root.Child("photoid"); n != nil {
		id = strings.TrimSpace(n.Text)
	} else if n := root.Child("ticketid"); n != nil {
		id = strings.TrimSpace(n.Text)
	}
	if id == "" {
		u.fail(r, &Error{Code: ErrCodeMalformed, Message: "upload response carries no photo or ticket ID"})
		return
	}

	u.record(r, "ok")
	u.logger.Debug("upload finished", "photo_id", id, "duration", r.Elapsed())
	u.up.seq.deliver(r, func() {
		u.up.delegate.UploadDidComplete(u.up, id)
	})
}

func (u *upload) RequestDidFail(r *transport.Request, err error) {
	u.turn.wait()
	u.fail(r, failureError(err))
}

func (u *upload) RequestDidTimeout(r *transport.Request) {
	u.turn.wait()
	u.fail(r, &Error{Code: ErrCodeTimeout})
}

func (u *upload) RequestDidCancel(r *transport.Request) {
	u.turn.wait()
	u.record(r, "canceled")
	u.up.seq.deliver(r, func() {
		u.up.delegate.UploadDidCancel(u.up)
	})
}

func (u *upload) fail(r *transport.Request, err *Error) {
	u.record(r, err.outcome())
	u.logger.Info("upload failed", "code", err.Code, "err", err)
	u.up.seq.deliver(r, func() {
		u.up.delegate.UploadDidFail(u.up, err)
	})
}

func (u *upload) record(r *transport.Request, outcome string) {
	invocationOutcomes.WithLabelValues("upload", outcome).Inc()
	invocationDuration.WithLabelValues("upload", outcome).Observe(r.Elapsed().Seconds())
	uploadBytes.Add(float64(r.BytesSent()))
}
