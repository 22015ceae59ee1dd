package transport

// Receives notifications for a [Request]. All methods are called from the request's delivery goroutine, one at a time.
type Delegate interface {
	// Cumulative bytes received (GET) or sent (POST), against a known total or [UnknownTotal].
	RequestProgress(r *Request, bytes, total int64)

	// The transfer finished; body is the complete response.
	RequestDidFetch(r *Request, body []byte)

	// The connection failed, or the server returned a non-2xx status (see [StatusError]).
	RequestDidFail(r *Request, err error)

	RequestDidTimeout(r *Request)

	RequestDidCancel(r *Request)
}

// No-op implementation of every [Delegate] method, for embedding.
type NopDelegate struct{}

func (NopDelegate) RequestProgress(r *Request, bytes, total int64) {}
func (NopDelegate) RequestDidFetch(r *Request, body []byte)        {}
func (NopDelegate) RequestDidFail(r *Request, err error)           {}
func (NopDelegate) RequestDidTimeout(r *Request)                   {}
func (NopDelegate) RequestDidCancel(r *Request)                    {}
