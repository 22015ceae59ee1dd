package client

import (
	"github.com/bluesky-social/photoapi/xmldoc"
)

// Receives invocation outcomes. Methods are called one at a time, never concurrently for the same invocation.
type Delegate interface {
	InvocationDidFetch(inv *Invocation, doc xmldoc.Document)
	InvocationDidFail(inv *Invocation, err *Error)

	// Cumulative bytes received, against the expected total or [transport.UnknownTotal].
	InvocationProgress(inv *Invocation, received, total int64)
}

// Terminal callback for [Invocation.CallFunc]. code 0: data is an [xmldoc.Document]. code > 0: data is the remote error message (string). code < 0: data is the underlying error, or nil.
type CallbackFunc func(inv *Invocation, code int, data any)

type NopDelegate struct{}

func (NopDelegate) InvocationDidFetch(inv *Invocation, doc xmldoc.Document)   {}
func (NopDelegate) InvocationDidFail(inv *Invocation, err *Error)             {}
func (NopDelegate) InvocationProgress(inv *Invocation, received, total int64) {}

// Receives upload outcomes. Methods are called one at a time, never concurrently for the same uploader.
type UploadDelegate interface {
	// photoID is the new photo's ID, or the ticket ID for asynchronous uploads.
	UploadDidComplete(up *Uploader, photoID string)

	// Called for every failure except cancellation.
	UploadDidFail(up *Uploader, err *Error)

	// Cumulative bytes of the request body sent, against its total length.
	UploadProgress(up *Uploader, sent, total int64)

	UploadDidCancel(up *Uploader)
}

type NopUploadDelegate struct{}

func (NopUploadDelegate) UploadDidComplete(up *Uploader, photoID string)    {}
func (NopUploadDelegate) UploadDidFail(up *Uploader, err *Error)            {}
func (NopUploadDelegate) UploadProgress(up *Uploader, sent, total int64)    {}
func (NopUploadDelegate) UploadDidCancel(up *Uploader)                      {}
