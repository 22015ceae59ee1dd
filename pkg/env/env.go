package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

// Build version; may be overridden at link time.
var Version = versioninfo.Short()

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", Version) // nolint:errcheck
}

// User-Agent header value sent on every request.
func UserAgent() string {
	return "photoapi/" + Version
}
