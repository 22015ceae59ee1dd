package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/internal/testapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv       *testapi.Server
	statePath string
}

func newHarness(t *testing.T) *harness {
	srv := testapi.NewServer()
	t.Cleanup(srv.Close)
	return &harness{
		srv:       srv,
		statePath: filepath.Join(t.TempDir(), "state", "auth.json"),
	}
}

// Runs the CLI against the fake server and returns its output lines.
func (h *harness) run(t *testing.T, args ...string) ([]string, error) {
	t.Helper()
	base := []string{
		"flickrup",
		"--api-key", testapi.APIKey,
		"--shared-secret", testapi.Secret,
		"--state-file", h.statePath,
		"--log-level", "error",
	}
	for k, v := range h.srv.EndPoints() {
		base = append(base, "--endpoint", k+"="+v)
	}
	var out bytes.Buffer
	err := run(context.Background(), append(base, args...), &out)
	return strings.Split(strings.TrimSpace(out.String()), "\n"), err
}

func TestAuthFlow(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	h := newHarness(t)

	lines, err := h.run(t, "authenticate")
	require.NoError(err)
	assert.Contains(lines, "FrobID: "+testapi.Frob)
	require.True(strings.HasPrefix(lines[0], "LoginURL: "+h.srv.URL+"/services/auth/?"))
	assert.Contains(lines[0], "frob="+testapi.Frob)
	assert.Contains(lines[0], "perms=write")
	assert.Contains(lines[0], "api_sig=")

	lines, err = h.run(t, "gettoken", testapi.Frob)
	require.NoError(err)
	assert.Equal([]string{"Token: " + testapi.AuthToken}, lines)

	st, err := loadAuthState(h.statePath)
	require.NoError(err)
	assert.Equal(testapi.AuthToken, st.Token)
	assert.Equal(testapi.APIKey, st.APIKey)
	assert.Equal("Bees", st.Username)
	assert.Equal("write", st.Perms)

	// the saved token is picked up by later commands
	lines, err = h.run(t, "checktoken")
	require.NoError(err)
	assert.Equal([]string{"Token: " + testapi.AuthToken, "Perms: write", "User: Bees"}, lines)

	_, err = h.run(t, "authenticate", "--fresh")
	require.NoError(err)
	_, err = loadAuthState(h.statePath)
	assert.ErrorIs(err, ErrNoAuthState)

	lines, err = h.run(t, "checktoken")
	assert.Error(err)
	assert.Equal([]string{"Error: " + apicontext.ErrNoAuthToken.Error()}, lines)
}

func TestGetTokenBadFrob(t *testing.T) {
	h := newHarness(t)

	lines, err := h.run(t, "gettoken", "nope")
	assert.Error(t, err)
	assert.Equal(t, []string{"Error: API error 108: Invalid frob"}, lines)
}

func TestCall(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	lines, err := h.run(t, "--auth-token", testapi.AuthToken, "call", "flickr_test_login")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(lines[0], `"Bees"`)

	lines, err = h.run(t, "call", "--arrayed", "photo", "flickr.photos.search", "tags=cat", "per_page=1")
	require.NoError(t, err)
	assert.Contains(lines[0], `"photo":[{"_id":"1","_title":"cat"}]`)

	lines, err = h.run(t, "call", "--post", "flickr.photos.getInfo", "photo_id=404")
	assert.Error(t, err)
	assert.Equal([]string{"Error: API error 1: Photo not found"}, lines)

	_, err = h.run(t, "call", "flickr.test.echo", "novalue")
	assert.Error(t, err)

	// authenticated calls without a token never reach the server
	_, err = h.run(t, "call", "--auth", "flickr.test.echo")
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	h := newHarness(t)

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"one.jpg", "two.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(os.WriteFile(p, bytes.Repeat([]byte(name), 50000), 0o644))
		paths = append(paths, p)
	}

	args := append([]string{"--auth-token", testapi.AuthToken, "upload", "--parallel", "2", "--tags", "a", "--tags", "b", "--public"}, paths...)
	lines, err := h.run(t, args...)
	require.NoError(err)

	var ids, urls, edit int
	for _, l := range lines {
		switch {
		case l == "Uploaded_ID: "+testapi.PhotoID:
			ids++
		case l == "PhotoURL: https://www.flickr.com/photos/bees/"+testapi.PhotoID+"/":
			urls++
		case strings.HasPrefix(l, "EditURL: "):
			edit++
			assert.Contains(l, "ids="+testapi.PhotoID+"%2C"+testapi.PhotoID)
		}
	}
	assert.Equal(2, ids)
	assert.Equal(2, urls)
	assert.Equal(1, edit)
	assert.Contains(lines, "Progress: 100")
	assert.Contains(lines, "Processing image...")

	uploads := h.srv.Uploads()
	require.Len(uploads, 2)
	for _, up := range uploads {
		assert.Equal("a,b", up.Fields["tags"])
		assert.Equal("1", up.Fields["is_public"])
		assert.Equal(up.Filename, up.Fields["title"])
	}
}

func TestUploadAsyncWait(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	lines, err := h.run(t, "--auth-token", testapi.AuthToken, "upload", "--async", "--wait", "--poll-interval", "10ms", writeTemp(t, "a.jpg"))
	require.NoError(t, err)
	assert.Contains(lines, "Ticket_ID: T-"+testapi.PhotoID)
	assert.Contains(lines, "Uploaded_ID: "+testapi.PhotoID)
	assert.Contains(lines, "PhotoURL: https://www.flickr.com/photos/bees/"+testapi.PhotoID+"/")
	assert.Equal("1", h.srv.Uploads()[0].Fields["async"])

	// without --wait only the ticket is reported
	lines, err = h.run(t, "--auth-token", testapi.AuthToken, "upload", "--async", writeTemp(t, "b.jpg"))
	require.NoError(t, err)
	assert.Contains(lines, "Ticket_ID: T-"+testapi.PhotoID)
	assert.NotContains(lines, "Uploaded_ID: "+testapi.PhotoID)
}

func TestUploadErrors(t *testing.T) {
	h := newHarness(t)

	lines, err := h.run(t, "upload", "x.jpg")
	assert.Error(t, err)
	assert.Equal(t, []string{"Error: " + apicontext.ErrNoAuthToken.Error()}, lines)

	lines, err = h.run(t, "--auth-token", testapi.AuthToken, "upload", filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Error: missing.jpg: "))

	lines, err = h.run(t, "--auth-token", "wrong", "upload", "--async", writeTemp(t, "a.png"))
	assert.Error(t, err)
	assert.Contains(t, lines, "Error: a.png: API error 98: Invalid auth token")
}

func writeTemp(t *testing.T, name string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	return p
}
