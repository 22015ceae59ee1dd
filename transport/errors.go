package transport

import (
	"fmt"
)

// Returned to [Delegate.RequestDidFail] when the server answered with a non-2xx status. The response body is kept, since some services put an error document in it.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed (HTTP %d)", e.StatusCode)
}
