package client

import (
	"errors"
	"fmt"

	"github.com/bluesky-social/photoapi/transport"
	"github.com/bluesky-social/photoapi/xmldoc"
)

// Parses a response body into the root element, classifying remote and malformed responses.
func decodeRoot(body []byte) (*xmldoc.Node, *Error) {
	root, err := xmldoc.Parse(body)
	if err != nil {
		return nil, &Error{Code: ErrCodeMalformed, Err: err}
	}
	if code, msg, ok := xmldoc.RemoteError(root); ok {
		if code <= 0 {
			return nil, &Error{Code: ErrCodeMalformed, Message: fmt.Sprintf("failure response without error code (%q)", msg)}
		}
		return nil, &Error{Code: code, Message: msg}
	}
	return root, nil
}

// Maps a transport failure to an [*Error]. Non-2xx responses which carry a well-formed API failure document are reported as that remote error.
func failureError(err error) *Error {
	var se *transport.StatusError
	if errors.As(err, &se) && len(se.Body) > 0 {
		if _, remote := decodeRoot(se.Body); remote != nil && remote.IsRemote() {
			return remote
		}
	}
	return &Error{Code: ErrCodeConnection, Err: err}
}
