package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/client"
	"github.com/bluesky-social/photoapi/pkg/robusthttp"
	"github.com/bluesky-social/photoapi/xmldoc"

	"github.com/urfave/cli/v2"
)

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// Line-oriented output shared by concurrent uploads. Each line is "Key: value", which wrapper scripts parse.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Line(key string, val any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s: %v\n", key, val)
}

func (p *printer) Text(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// Everything a command needs to make API calls.
type session struct {
	apiCtx    *apicontext.Context
	logger    *slog.Logger
	out       *printer
	invOpts   []client.Option
	uploadOpt []client.Option
	statePath string
}

func newSession(cctx *cli.Context) (*session, error) {
	logger := configLogger(cctx, os.Stderr)

	apiKey := cctx.String("api-key")
	if apiKey == "" {
		return nil, fmt.Errorf("API key required (--api-key or FLICKR_API_KEY)")
	}
	apiCtx := apicontext.New(apiKey, cctx.String("shared-secret"))
	endPoints := apicontext.EndPointsByName(cctx.String("service"))
	for _, kv := range cctx.StringSlice("endpoint") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid endpoint override (expected key=url): %s", kv)
		}
		endPoints[k] = v
	}
	apiCtx.SetEndPoints(endPoints)

	sess := &session{
		apiCtx:    apiCtx,
		logger:    logger,
		out:       &printer{w: cctx.App.Writer},
		statePath: cctx.String("state-file"),
	}

	token := cctx.String("auth-token")
	if token == "" {
		st, err := loadAuthState(sess.statePath)
		if err != nil && !errors.Is(err, ErrNoAuthState) {
			return nil, err
		}
		if st != nil && st.APIKey == apiKey {
			token = st.Token
		}
	}
	apiCtx.SetAuthToken(token)

	common := []client.Option{
		client.WithTimeout(cctx.Duration("timeout")),
		client.WithLogger(logger),
	}
	sess.invOpts = append(sess.invOpts, common...)
	if n := cctx.Int("retries"); n > 0 {
		hc := robusthttp.NewClient(
			robusthttp.WithMaxRetries(n),
			robusthttp.WithRetryPolicy(client.RetryPolicy),
			robusthttp.WithLogger(logger),
		)
		sess.invOpts = append(sess.invOpts, client.WithHTTPClient(hc))
	}
	sess.uploadOpt = common
	return sess, nil
}

type outcome struct {
	doc xmldoc.Document
	err error
}

type waiter struct {
	client.NopDelegate
	results chan outcome
}

func (w *waiter) InvocationDidFetch(inv *client.Invocation, doc xmldoc.Document) {
	w.results <- outcome{doc: doc}
}

func (w *waiter) InvocationDidFail(inv *client.Invocation, err *client.Error) {
	w.results <- outcome{err: err}
}

// Runs one API call to completion. start is handed a fresh invocation and must begin the call. If ctx ends first, the call is canceled.
func (s *session) await(ctx context.Context, start func(inv *client.Invocation) bool, opts ...client.Option) (xmldoc.Document, error) {
	w := &waiter{results: make(chan outcome, 1)}
	opts = append(append([]client.Option{}, s.invOpts...), opts...)
	inv := client.NewInvocation(s.apiCtx, append(opts, client.WithDelegate(w))...)
	if !start(inv) {
		return nil, fmt.Errorf("could not start API call")
	}
	select {
	case res := <-w.results:
		return res.doc, res.err
	case <-ctx.Done():
		inv.Cancel()
		<-inv.Done()
		return nil, ctx.Err()
	}
}

// Parses "key=value" command arguments into call parameters.
func parseParams(args []string) (apicontext.Params, error) {
	params := apicontext.Params{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter (expected key=value): %s", a)
		}
		params[k] = v
	}
	return params, nil
}
