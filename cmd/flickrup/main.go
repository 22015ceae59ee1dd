package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/client"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(-1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "flickrup",
		Usage:   "upload photos to Flickr-compatible photo services",
		Version: versioninfo.Short(),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key issued by the photo service",
				EnvVars: []string{"FLICKR_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "shared-secret",
				Usage:   "shared secret for the API key; required for signed and authenticated calls",
				EnvVars: []string{"FLICKR_SHARED_SECRET"},
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "auth token; overrides the token saved by 'gettoken'",
				EnvVars: []string{"FLICKR_AUTH_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "service",
				Usage:   "built-in endpoint table (flickr, 23hq, zooomr)",
				Value:   apicontext.FlickrEndPoints,
				EnvVars: []string{"FLICKR_SERVICE"},
			},
			&cli.StringSliceFlag{
				Name:  "endpoint",
				Usage: "override a single endpoint, as key=url (eg: RESTAPIEndPoint=http://localhost:8080/services/rest/)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "fixed deadline for each API call and upload",
				Value:   client.DefaultTimeout,
				EnvVars: []string{"FLICKR_TIMEOUT"},
			},
			&cli.IntFlag{
				Name:    "retries",
				Usage:   "retry failed API calls (not uploads) this many times",
				EnvVars: []string{"FLICKR_RETRIES"},
			},
			&cli.StringFlag{
				Name:    "state-file",
				Usage:   "path of the saved auth token (default: XDG state directory)",
				EnvVars: []string{"FLICKR_STATE_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "warn",
				EnvVars: []string{"FLICKRUP_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
	}
	app.Commands = []*cli.Command{
		cmdAuthenticate,
		cmdGetToken,
		cmdCheckToken,
		cmdCall,
		cmdUpload,
	}
	return app
}

func run(ctx context.Context, args []string, out io.Writer) error {
	return newApp(out).RunContext(ctx, args)
}
