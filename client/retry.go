package client

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/bluesky-social/photoapi/pkg/robusthttp"
)

// error documents are small; anything past this is left unread for the caller
const maxErrorPeek = 64 * 1024

// Retry policy for invocations sent through a retrying client ([robusthttp.NewClient] with [robusthttp.WithRetryPolicy]).
//
// It extends [robusthttp.DefaultRetryPolicy]: a 5xx response whose body is an API failure document is the API's answer, not a transient fault, and is never retried. The body is restored for the caller after peeking.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode >= 500 && resp.Body != nil {
		peek, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorPeek))
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(peek), resp.Body), resp.Body}
		if rerr == nil {
			if _, remote := decodeRoot(peek); remote != nil && remote.IsRemote() {
				return false, nil
			}
		}
	}
	return robusthttp.DefaultRetryPolicy(ctx, resp, err)
}
