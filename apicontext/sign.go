package apicontext

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
)

// Boundary used for every multipart body built by this package.
const POSTDataSeparator = "---------------------------8f999edae883c6039b244c0d341f45f8"

// Form field which carries the file in an upload body.
const UploadFileField = "photo"

// Standard parameter names added by the context.
const (
	ParamAPIKey    = "api_key"
	ParamAuthToken = "auth_token"
	ParamSignature = "api_sig"
	ParamFrob      = "frob"
	ParamPerms     = "perms"
)

// Computes the request signature over params: MD5 of the shared secret followed by each key and value, keys sorted. Returns the empty string if the context has no shared secret.
func (c *Context) Sign(params map[string]string) string {
	if c.sharedSecret == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(c.sharedSecret)
	for _, k := range sortedKeys(params) {
		sb.WriteString(k)
		sb.WriteString(params[k])
	}
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Flattens params and adds the api key, the auth token (if auth), and the signature (if sign and a shared secret is configured).
//
// Authenticated requests require both a shared secret and an auth token; this returns an error rather than quietly sending an unauthenticated call.
func (c *Context) PrepareParams(params Params, auth, sign bool) (map[string]string, error) {
	if auth {
		if c.sharedSecret == "" {
			return nil, ErrNoSharedSecret
		}
		if c.authToken == "" {
			return nil, ErrNoAuthToken
		}
	}
	flat, err := NormalizeParams(params)
	if err != nil {
		return nil, err
	}
	flat[ParamAPIKey] = c.apiKey
	if auth {
		flat[ParamAuthToken] = c.authToken
	}
	delete(flat, ParamSignature)
	if sign && c.sharedSecret != "" {
		flat[ParamSignature] = c.Sign(flat)
	}
	return flat, nil
}

// Builds a GET URL against the REST endpoint.
func (c *Context) GetURL(params Params, auth, sign bool) (string, error) {
	endpoint, err := c.EndPoint(RESTAPIEndPointKey)
	if err != nil {
		return "", err
	}
	flat, err := c.PrepareParams(params, auth, sign)
	if err != nil {
		return "", err
	}
	return joinQuery(endpoint, flat)
}

// Builds the browser URL for the web login flow, signed, with the given frob and permission level ("read", "write" or "delete").
func (c *Context) LoginURL(frob, perms string) (string, error) {
	if c.sharedSecret == "" {
		return "", ErrNoSharedSecret
	}
	endpoint, err := c.EndPoint(AuthEndPointKey)
	if err != nil {
		return "", err
	}
	flat, err := c.PrepareParams(Params{ParamFrob: frob, ParamPerms: perms}, false, true)
	if err != nil {
		return "", err
	}
	return joinQuery(endpoint, flat)
}

// Builds a multipart POST body for a REST call, using [POSTDataSeparator]. Used for signed calls whose parameters are too large for a query string.
func (c *Context) PostBody(params Params, auth, sign bool) ([]byte, error) {
	flat, err := c.PrepareParams(params, auth, sign)
	if err != nil {
		return nil, err
	}
	return MultipartBody(flat, "", nil, "", POSTDataSeparator)
}

// Builds a signed upload body: api key, auth token, the photo metadata in info, the signature, then the file part.
//
// Recognized info keys are "title", "description", "tags", "is_public", "is_friend" and "is_family"; when no title is given, filename is used.
func (c *Context) UploadBody(data []byte, filename string, info Params) ([]byte, error) {
	params := Params{}
	for k, v := range info {
		params[k] = v
	}
	if _, ok := params["title"]; !ok && filename != "" {
		params["title"] = filename
	}
	flat, err := c.PrepareParams(params, true, true)
	if err != nil {
		return nil, err
	}
	return MultipartBody(flat, UploadFileField, data, filename, POSTDataSeparator)
}

func (c *Context) UploadURL() (string, error) {
	return c.EndPoint(UploadEndPointKey)
}

// Returns the page a user should be sent to after uploading one or more photos.
func (c *Context) UploadCallbackURL(photoIDs ...string) (string, error) {
	endpoint, err := c.EndPoint(UploadCallBackEndPointKey)
	if err != nil {
		return "", err
	}
	return joinQuery(endpoint, map[string]string{"ids": strings.Join(photoIDs, ",")})
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Builds a multipart/form-data body. Scalar params are written first, in sorted key order; if fileField is non-empty a file part named filename follows. The body ends with the closing boundary.
func MultipartBody(params map[string]string, fileField string, fileBytes []byte, filename, boundary string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("invalid multipart boundary: %w", err)
	}
	for _, k := range sortedKeys(params) {
		if err := w.WriteField(k, params[k]); err != nil {
			return nil, err
		}
	}
	if fileField != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(fileField), quoteEscaper.Replace(filename)))
		h.Set("Content-Type", contentTypeFor(filename))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(fileBytes); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentTypeFor(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func joinQuery(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
