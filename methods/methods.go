// Package methods has typed wrappers for common API methods, on top of [client.Invocation].
//
// Each wrapper builds its parameters from a struct with `url` tags, picks the authentication requirement from [Table], and forwards to [client.Invocation.CallFunc]. A nil callback routes the outcome to the invocation's delegate. Return values are those of CallFunc.
package methods

import (
	"fmt"
	"strings"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/client"

	"github.com/google/go-querystring/query"
)

// Calls the named method, in either underscore or dotted form, with authentication as listed in [Table].
func Invoke(inv *client.Invocation, name string, params apicontext.Params, cb client.CallbackFunc) bool {
	method := Translate(name)
	return inv.CallFunc(method, params, RequiresAuth(method), cb)
}

// Flattens a struct with `url` tags into call parameters. Repeated values are comma-joined.
func StructParams(v any) (apicontext.Params, error) {
	vals, err := query.Values(v)
	if err != nil {
		return nil, fmt.Errorf("encoding method params: %w", err)
	}
	out := make(apicontext.Params, len(vals))
	for k, vs := range vals {
		out[k] = strings.Join(vs, ",")
	}
	return out, nil
}

func invokeStruct(inv *client.Invocation, method string, args any, cb client.CallbackFunc) bool {
	params, err := StructParams(args)
	if err != nil {
		inv.Logger().Warn("could not build method params", "method", method, "err", err)
		return false
	}
	return Invoke(inv, method, params, cb)
}

func AuthGetFrob(inv *client.Invocation, cb client.CallbackFunc) bool {
	return Invoke(inv, "flickr.auth.getFrob", nil, cb)
}

type GetTokenArgs struct {
	Frob string `url:"frob"`
}

// Exchanges a frob, after the user has approved it in the browser, for an auth token.
func AuthGetToken(inv *client.Invocation, frob string, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.auth.getToken", GetTokenArgs{Frob: frob}, cb)
}

func AuthCheckToken(inv *client.Invocation, cb client.CallbackFunc) bool {
	return Invoke(inv, "flickr.auth.checkToken", nil, cb)
}

// Echoes params back; useful for checking keys and signatures.
func TestEcho(inv *client.Invocation, params apicontext.Params, cb client.CallbackFunc) bool {
	return Invoke(inv, "flickr.test.echo", params, cb)
}

func TestLogin(inv *client.Invocation, cb client.CallbackFunc) bool {
	return Invoke(inv, "flickr.test.login", nil, cb)
}

type SearchArgs struct {
	UserID  string   `url:"user_id,omitempty"`
	Tags    []string `url:"tags,omitempty,comma"`
	TagMode string   `url:"tag_mode,omitempty"`
	Text    string   `url:"text,omitempty"`
	Sort    string   `url:"sort,omitempty"`
	Extras  []string `url:"extras,omitempty,comma"`
	PerPage int      `url:"per_page,omitempty"`
	Page    int      `url:"page,omitempty"`
}

func PhotosSearch(inv *client.Invocation, args SearchArgs, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.photos.search", args, cb)
}

type PhotoArgs struct {
	PhotoID string `url:"photo_id"`

	// optional; skips the permission check for public photos
	Secret string `url:"secret,omitempty"`
}

func PhotosGetInfo(inv *client.Invocation, args PhotoArgs, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.photos.getInfo", args, cb)
}

func PhotosGetSizes(inv *client.Invocation, photoID string, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.photos.getSizes", PhotoArgs{PhotoID: photoID}, cb)
}

type PersonArgs struct {
	UserID string `url:"user_id"`
}

func PeopleGetInfo(inv *client.Invocation, userID string, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.people.getInfo", PersonArgs{UserID: userID}, cb)
}

type TicketArgs struct {
	Tickets []string `url:"tickets,comma"`
}

// Asks for the status of asynchronous upload tickets.
func PhotosUploadCheckTickets(inv *client.Invocation, tickets []string, cb client.CallbackFunc) bool {
	return invokeStruct(inv, "flickr.photos.upload.checkTickets", TicketArgs{Tickets: tickets}, cb)
}
