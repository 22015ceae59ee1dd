package client

import (
	"log/slog"
	"net/http"
	"time"
)

// Default fixed deadline for invocations and uploads.
const DefaultTimeout = 15 * time.Second

type config struct {
	delegate       Delegate
	uploadDelegate UploadDelegate
	timeout        time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	arrayed        map[string]bool
	usePOST        bool
	userInfo       any
}

func newConfig(opts []Option) config {
	cfg := config{
		delegate:       NopDelegate{},
		uploadDelegate: NopUploadDelegate{},
		timeout:        DefaultTimeout,
		logger:         slog.Default().With("subsystem", "photoapi"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type Option func(*config)

// Delegate for [Invocation] outcomes and progress.
func WithDelegate(d Delegate) Option {
	return func(c *config) {
		if d != nil {
			c.delegate = d
		}
	}
}

// Delegate for [Uploader] outcomes and progress.
func WithUploadDelegate(d UploadDelegate) Option {
	return func(c *config) {
		if d != nil {
			c.uploadDelegate = d
		}
	}
}

// Fixed deadline for each call, measured from start. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// HTTP client used for every request. The default has no retry layer.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Tags which always normalize to a sequence, even when they occur once.
func WithArrayedTags(tags ...string) Option {
	return func(c *config) {
		if c.arrayed == nil {
			c.arrayed = map[string]bool{}
		}
		for _, t := range tags {
			c.arrayed[t] = true
		}
	}
}

// Sends API calls as multipart POST bodies instead of GET query strings, for parameters too large for a URL.
func WithPOST() Option {
	return func(c *config) {
		c.usePOST = true
	}
}

// Arbitrary caller data, retrievable from the invocation or uploader in callbacks.
func WithUserInfo(info any) Option {
	return func(c *config) {
		c.userInfo = info
	}
}
