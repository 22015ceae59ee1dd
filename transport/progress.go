package transport

import (
	"io"
)

// Wraps a request body, reporting every chunk handed to the HTTP transport. Reads are capped so that large bodies produce regular progress.
type progressReader struct {
	r      io.Reader
	onRead func(n int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if len(b) > readChunkSize {
		b = b[:readChunkSize]
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.onRead(n)
	}
	return n, err
}
