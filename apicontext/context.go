package apicontext

import (
	"errors"
	"maps"
	"sync"
)

// Keys into an endpoint table.
const (
	RESTAPIEndPointKey        = "RESTAPIEndPoint"
	AuthEndPointKey           = "authEndPoint"
	UploadEndPointKey         = "uploadEndPoint"
	UploadCallBackEndPointKey = "uploadCallBackEndPoint"
	PhotoURLPrefixKey         = "photoURLPrefix"
	DefaultBuddyIconKey       = "defaultBuddyIcon"
)

// Names of the built-in endpoint tables, for use with [EndPointsByName].
const (
	FlickrEndPoints = "flickr"
	HQ23EndPoints   = "23hq"
	ZooomrEndPoints = "zooomr"
)

var (
	ErrNoSharedSecret = errors.New("shared secret required for authenticated call")
	ErrNoAuthToken    = errors.New("auth token required for authenticated call")
	ErrNoEndPoint     = errors.New("endpoint not configured")
)

var endPointTables = map[string]map[string]string{
	FlickrEndPoints: {
		RESTAPIEndPointKey:        "https://api.flickr.com/services/rest/",
		AuthEndPointKey:           "https://www.flickr.com/services/auth/",
		UploadEndPointKey:         "https://up.flickr.com/services/upload/",
		UploadCallBackEndPointKey: "https://www.flickr.com/tools/uploader_edit.gne",
		PhotoURLPrefixKey:         "https://live.staticflickr.com/",
		DefaultBuddyIconKey:       "https://www.flickr.com/images/buddyicon.gif",
	},
	HQ23EndPoints: {
		RESTAPIEndPointKey:        "http://www.23hq.com/services/rest/",
		AuthEndPointKey:           "http://www.23hq.com/services/auth/",
		UploadEndPointKey:         "http://www.23hq.com/services/upload/",
		UploadCallBackEndPointKey: "http://www.23hq.com/tools/uploader_edit.gne",
		PhotoURLPrefixKey:         "http://www.23hq.com/",
		DefaultBuddyIconKey:       "http://www.23hq.com/images/buddyicon.jpg",
	},
	ZooomrEndPoints: {
		RESTAPIEndPointKey:        "http://api.zooomr.com/services/rest/",
		AuthEndPointKey:           "http://www.zooomr.com/services/auth/",
		UploadEndPointKey:         "http://upload.zooomr.com/services/upload/",
		UploadCallBackEndPointKey: "http://www.zooomr.com/tools/uploader_edit.gne",
		PhotoURLPrefixKey:         "http://static.zooomr.com/images/",
		DefaultBuddyIconKey:       "http://www.zooomr.com/images/buddyicon.jpg",
	},
}

// Returns a copy of the named built-in endpoint table. Unknown names return the Flickr table.
func EndPointsByName(name string) map[string]string {
	t, ok := endPointTables[name]
	if !ok {
		t = endPointTables[FlickrEndPoints]
	}
	return maps.Clone(t)
}

// Context carries the API key, shared secret, auth token and endpoint table used by every call.
//
// The zero value is not usable; create one with [New].
type Context struct {
	apiKey       string
	sharedSecret string
	authToken    string
	endPoints    map[string]string
}

// Creates a context with the default (Flickr) endpoint table. Pass an empty secret if only public, unsigned calls will be made.
func New(apiKey, sharedSecret string) *Context {
	return &Context{
		apiKey:       apiKey,
		sharedSecret: sharedSecret,
		endPoints:    EndPointsByName(FlickrEndPoints),
	}
}

func (c *Context) APIKey() string {
	return c.apiKey
}

func (c *Context) SharedSecret() string {
	return c.sharedSecret
}

func (c *Context) AuthToken() string {
	return c.authToken
}

// Stores the auth token obtained from the login flow. Must not be called while other goroutines are building requests from this context.
func (c *Context) SetAuthToken(token string) {
	c.authToken = token
}

// Replaces the endpoint table, eg to talk to a Flickr-compatible service. The map is copied.
func (c *Context) SetEndPoints(endPoints map[string]string) {
	c.endPoints = maps.Clone(endPoints)
}

// Returns a copy of the current endpoint table.
func (c *Context) EndPoints() map[string]string {
	return maps.Clone(c.endPoints)
}

// Looks up a single endpoint URL by key.
func (c *Context) EndPoint(key string) (string, error) {
	u := c.endPoints[key]
	if u == "" {
		return "", ErrNoEndPoint
	}
	return u, nil
}

func (c *Context) RESTAPIEndPoint() string {
	return c.endPoints[RESTAPIEndPointKey]
}

// Whether signed calls can be made at all.
func (c *Context) CanSign() bool {
	return c.sharedSecret != ""
}

// Whether authenticated calls can be made. Callers are expected to check this before issuing an authenticated call.
func (c *Context) CanAuthenticate() bool {
	return c.sharedSecret != "" && c.authToken != ""
}

var (
	defaultMu  sync.RWMutex
	defaultCtx *Context
)

// Registers an optional process-wide context. Nothing in this module reads it implicitly; it exists for applications which want one shared handle.
func SetDefault(c *Context) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCtx = c
}

// Returns the context registered with [SetDefault], or nil.
func Default() *Context {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultCtx
}
