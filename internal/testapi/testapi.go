// Package testapi is an in-process fake of the REST and upload endpoints, for tests.
package testapi

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/bluesky-social/photoapi/apicontext"
)

const (
	APIKey    = "testkey"
	Secret    = "testsecret"
	AuthToken = "72157-testtoken"
	Frob      = "frob-1234"
	PhotoID   = "5150"
)

// Server answers a small set of API methods:
//
//   - flickr.test.echo: echoes every parameter as an element
//   - flickr.test.login: requires a valid signed, authenticated call
//   - flickr.auth.getFrob, flickr.auth.getToken, flickr.auth.checkToken
//   - flickr.photos.getInfo: photo_id "404" fails with code 1 "Photo not found"
//   - flickr.photos.search: returns per_page photos (default 2)
//   - flickr.photos.upload.checkTickets: "T-<id>" tickets are incomplete on the first check and complete afterwards; others are invalid
//   - test.hang: sends headers and nothing else until released
//   - test.drip: sends a partial body, then hangs until released
//   - test.garbage: returns a non-XML body
//   - test.status: returns HTTP 503 with a plain-text body
type Server struct {
	*httptest.Server

	release   chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	uploads []Upload
	checks  map[string]int
}

// An upload received by the fake upload endpoint.
type Upload struct {
	Fields   map[string]string
	Filename string
	Data     []byte
}

func NewServer() *Server {
	s := &Server{release: make(chan struct{}), checks: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/services/rest/", s.handleREST)
	mux.HandleFunc("/services/upload/", s.handleUpload)
	s.Server = httptest.NewServer(mux)
	return s
}

// Unblocks hanging handlers, then shuts the server down.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.release) })
	s.Server.CloseClientConnections()
	s.Server.Close()
}

// Endpoint table pointing every endpoint at this server.
func (s *Server) EndPoints() map[string]string {
	ep := apicontext.EndPointsByName(apicontext.FlickrEndPoints)
	ep[apicontext.RESTAPIEndPointKey] = s.URL + "/services/rest/"
	ep[apicontext.AuthEndPointKey] = s.URL + "/services/auth/"
	ep[apicontext.UploadEndPointKey] = s.URL + "/services/upload/"
	return ep
}

// A context configured for this server, with the auth token set.
func (s *Server) Context() *apicontext.Context {
	c := apicontext.New(APIKey, Secret)
	c.SetEndPoints(s.EndPoints())
	c.SetAuthToken(AuthToken)
	return c
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"utf-8\" ?>\n%s\n", body)
}

func writeFail(w http.ResponseWriter, code int, msg string) {
	writeXML(w, fmt.Sprintf(`<rsp stat="fail"><err code="%d" msg="%s"/></rsp>`, code, html.EscapeString(msg)))
}

func checkSignature(params map[string]string) bool {
	sig := params[apicontext.ParamSignature]
	rest := make(map[string]string, len(params))
	for k, v := range params {
		if k != apicontext.ParamSignature {
			rest[k] = v
		}
	}
	c := apicontext.New(APIKey, Secret)
	return sig != "" && sig == c.Sign(rest)
}

func requestParams(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	if r.Method == http.MethodPost {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, err
		}
		for k, v := range r.MultipartForm.Value {
			out[k] = v[0]
		}
		return out, nil
	}
	for k, v := range r.URL.Query() {
		out[k] = v[0]
	}
	return out, nil
}

func (s *Server) hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.release:
	case <-r.Context().Done():
	}
}

func (s *Server) handleREST(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if params[apicontext.ParamAPIKey] != APIKey {
		writeFail(w, 100, "Invalid API Key")
		return
	}
	if _, ok := params[apicontext.ParamSignature]; ok && !checkSignature(params) {
		writeFail(w, 96, "Invalid signature")
		return
	}

	switch params["method"] {
	case "flickr.test.echo":
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "<%s>%s</%s>", k, html.EscapeString(params[k]), k)
		}
		writeXML(w, `<rsp stat="ok">`+sb.String()+`</rsp>`)
	case "flickr.test.login":
		if params[apicontext.ParamAuthToken] != AuthToken || !checkSignature(params) {
			writeFail(w, 98, "Invalid auth token")
			return
		}
		writeXML(w, `<rsp stat="ok"><user id="12037949754@N01"><username>Bees</username></user></rsp>`)
	case "flickr.auth.getFrob":
		writeXML(w, `<rsp stat="ok"><frob>`+Frob+`</frob></rsp>`)
	case "flickr.auth.getToken":
		if params["frob"] != Frob {
			writeFail(w, 108, "Invalid frob")
			return
		}
		writeXML(w, `<rsp stat="ok"><auth><token>`+AuthToken+`</token><perms>write</perms><user nsid="12037949754@N01" username="Bees" fullname="Cal H"/></auth></rsp>`)
	case "flickr.auth.checkToken":
		if params[apicontext.ParamAuthToken] != AuthToken {
			writeFail(w, 98, "Invalid auth token")
			return
		}
		writeXML(w, `<rsp stat="ok"><auth><token>`+AuthToken+`</token><perms>write</perms><user nsid="12037949754@N01" username="Bees" fullname="Cal H"/></auth></rsp>`)
	case "flickr.photos.getInfo":
		if params["photo_id"] == "404" {
			writeFail(w, 1, "Photo not found")
			return
		}
		id := html.EscapeString(params["photo_id"])
		writeXML(w, `<rsp stat="ok"><photo id="`+id+`" secret="abc" server="65535"><title>Cat</title><urls><url type="photopage">https://www.flickr.com/photos/bees/`+id+`/</url></urls></photo></rsp>`)
	case "flickr.photos.search":
		n := 2
		if c := params["per_page"]; c != "" {
			fmt.Sscanf(c, "%d", &n)
		}
		var sb strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, `<photo id="%d" title="%s"/>`, i+1, html.EscapeString(params["tags"]))
		}
		writeXML(w, fmt.Sprintf(`<rsp stat="ok"><photos page="1" total="%d">%s</photos></rsp>`, n, sb.String()))
	case "flickr.photos.upload.checkTickets":
		var sb strings.Builder
		for _, id := range strings.Split(params["tickets"], ",") {
			photoID, ok := strings.CutPrefix(id, "T-")
			if !ok || photoID == "" {
				fmt.Fprintf(&sb, `<ticket id="%s" invalid="1"/>`, html.EscapeString(id))
				continue
			}
			s.mu.Lock()
			s.checks[id]++
			n := s.checks[id]
			s.mu.Unlock()
			if n < 2 {
				fmt.Fprintf(&sb, `<ticket id="%s" complete="0"/>`, html.EscapeString(id))
			} else {
				fmt.Fprintf(&sb, `<ticket id="%s" complete="1" photoid="%s"/>`, html.EscapeString(id), html.EscapeString(photoID))
			}
		}
		writeXML(w, `<rsp stat="ok"><uploader>`+sb.String()+`</uploader></rsp>`)
	case "test.hang":
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		s.hang(w, r)
	case "test.drip":
		w.Header().Set("Content-Type", "text/xml")
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `<rsp stat="ok"><partial>`)
		w.(http.Flusher).Flush()
		s.hang(w, r)
	case "test.garbage":
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>oops")
	case "test.status":
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		writeFail(w, 112, fmt.Sprintf("Method \"%s\" not found", params["method"]))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	for k, v := range r.MultipartForm.Value {
		fields[k] = v[0]
	}
	if fields[apicontext.ParamAuthToken] != AuthToken || !checkSignature(fields) {
		writeFail(w, 98, "Invalid auth token")
		return
	}
	files := r.MultipartForm.File[apicontext.UploadFileField]
	if len(files) != 1 {
		writeFail(w, 2, "No photo specified")
		return
	}
	f, err := files[0].Open()
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		writeFail(w, 3, "General upload failure")
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{Fields: fields, Filename: files[0].Filename, Data: data})
	s.mu.Unlock()

	if fields["async"] == "1" {
		writeXML(w, `<rsp stat="ok"><ticketid>T-`+PhotoID+`</ticketid></rsp>`)
		return
	}
	writeXML(w, `<rsp stat="ok"><photoid>`+PhotoID+`</photoid></rsp>`)
}
