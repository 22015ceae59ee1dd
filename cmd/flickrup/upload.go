package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/client"
	"github.com/bluesky-social/photoapi/internal/ticker"
	"github.com/bluesky-social/photoapi/methods"
	"github.com/bluesky-social/photoapi/pkg/metrics"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var cmdUpload = &cli.Command{
	Name:      "upload",
	Usage:     "upload one or more photos",
	ArgsUsage: "<file>...",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "title",
			Usage: "photo title (default: file name)",
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "photo description",
		},
		&cli.StringSliceFlag{
			Name:  "tags",
			Usage: "tags to apply",
		},
		&cli.BoolFlag{
			Name:  "public",
			Usage: "make the photo visible to everyone",
		},
		&cli.BoolFlag{
			Name:  "friends",
			Usage: "make the photo visible to friends",
		},
		&cli.BoolFlag{
			Name:  "family",
			Usage: "make the photo visible to family",
		},
		&cli.BoolFlag{
			Name:  "async",
			Usage: "ask for asynchronous processing; prints a ticket ID instead of a photo ID",
		},
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "with --async, poll the ticket until the photo is ready",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "how often to check upload tickets with --wait",
			Value: 2 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "direct-url",
			Usage: "print the URL of the largest image instead of the photo page",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "number of uploads to run at once",
			Value: 1,
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to serve prometheus metrics on while uploading",
			EnvVars: []string{"FLICKRUP_METRICS_LISTEN"},
		},
	},
	Action: runUpload,
}

func runUpload(cctx *cli.Context) error {
	ctx, cancel := context.WithCancel(cctx.Context)
	defer cancel()

	paths := cctx.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("need to provide at least one file to upload")
	}
	sess, err := newSession(cctx)
	if err != nil {
		return err
	}
	if sess.apiCtx.AuthToken() == "" {
		sess.out.Line("Error", apicontext.ErrNoAuthToken)
		return apicontext.ErrNoAuthToken
	}

	if addr := cctx.String("metrics-listen"); addr != "" {
		go func() {
			if err := metrics.RunServer(ctx, cancel, addr); err != nil {
				sess.logger.Error("failed to start metrics endpoint", "err", err)
			}
		}()
	}

	info := apicontext.Params{}
	for _, f := range []string{"title", "description"} {
		if v := cctx.String(f); v != "" {
			info[f] = v
		}
	}
	if tags := cctx.StringSlice("tags"); len(tags) > 0 {
		info["tags"] = tags
	}
	if cctx.IsSet("public") {
		info["is_public"] = cctx.Bool("public")
	}
	if cctx.IsSet("friends") {
		info["is_friend"] = cctx.Bool("friends")
	}
	if cctx.IsSet("family") {
		info["is_family"] = cctx.Bool("family")
	}
	async := cctx.Bool("async")
	if async {
		info["async"] = true
	}
	wait := async && cctx.Bool("wait")

	var mu sync.Mutex
	var ids []string

	var eg errgroup.Group
	eg.SetLimit(max(cctx.Int("parallel"), 1))
	for _, path := range paths {
		eg.Go(func() error {
			id, err := sess.uploadOne(ctx, path, info)
			if err == nil && async {
				sess.out.Line("Ticket_ID", id)
				if !wait {
					return nil
				}
				id, err = sess.waitForTicket(ctx, id, cctx.Duration("poll-interval"))
			}
			if err != nil {
				sess.out.Line("Error", fmt.Sprintf("%s: %v", filepath.Base(path), err))
				return err
			}
			sess.out.Line("Uploaded_ID", id)
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
			u, err := sess.photoURL(ctx, id, cctx.Bool("direct-url"))
			if err != nil {
				sess.logger.Warn("could not look up photo URL", "photo_id", id, "err", err)
				return nil
			}
			sess.out.Line("PhotoURL", u)
			return nil
		})
	}
	err = eg.Wait()

	if len(ids) > 1 {
		if u, cerr := sess.apiCtx.UploadCallbackURL(ids...); cerr == nil {
			sess.out.Line("EditURL", u)
		}
	}
	return err
}

// Prints upload progress as whole percentages and collects the outcome.
type uploadProgress struct {
	client.NopUploadDelegate

	out        *printer
	lastPct    int64
	processing bool
	results    chan uploadResult
}

type uploadResult struct {
	photoID string
	err     error
}

func (p *uploadProgress) UploadProgress(up *client.Uploader, sent, total int64) {
	if total <= 0 {
		return
	}
	pct := sent * 100 / total
	if pct != p.lastPct {
		p.lastPct = pct
		p.out.Line("Progress", pct)
	}
	if sent >= total && !p.processing {
		p.processing = true
		p.out.Text("Processing image...")
	}
}

func (p *uploadProgress) UploadDidComplete(up *client.Uploader, photoID string) {
	p.results <- uploadResult{photoID: photoID}
}

func (p *uploadProgress) UploadDidFail(up *client.Uploader, err *client.Error) {
	p.results <- uploadResult{err: err}
}

func (p *uploadProgress) UploadDidCancel(up *client.Uploader) {
	p.results <- uploadResult{err: client.ErrCanceled}
}

func (s *session) uploadOne(ctx context.Context, path string, info apicontext.Params) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	p := &uploadProgress{out: s.out, lastPct: -1, results: make(chan uploadResult, 1)}
	opts := append(append([]client.Option{}, s.uploadOpt...), client.WithUploadDelegate(p))
	up := client.NewUploader(s.apiCtx, opts...)
	if !up.UploadFile(path, info) {
		return "", fmt.Errorf("could not start upload")
	}

	select {
	case res := <-p.results:
		return res.photoID, res.err
	case <-ctx.Done():
		up.Cancel()
		<-up.Done()
		return "", ctx.Err()
	}
}

// Looks up the photo page URL, or with direct the source URL of the largest size.
func (s *session) photoURL(ctx context.Context, photoID string, direct bool) (string, error) {
	if direct {
		doc, err := s.await(ctx, func(inv *client.Invocation) bool {
			return methods.PhotosGetSizes(inv, photoID, nil)
		})
		if err != nil {
			return "", err
		}
		sizes := doc.Path("rsp", "sizes").Docs("size")
		if len(sizes) == 0 {
			return "", fmt.Errorf("no sizes listed for photo %s", photoID)
		}
		return sizes[len(sizes)-1].Attr("source"), nil
	}

	doc, err := s.await(ctx, func(inv *client.Invocation) bool {
		return methods.PhotosGetInfo(inv, methods.PhotoArgs{PhotoID: photoID}, nil)
	})
	if err != nil {
		return "", err
	}
	for _, u := range doc.Path("rsp", "photo", "urls").Docs("url") {
		if u.Attr("type") == "photopage" {
			return u.Text(), nil
		}
	}
	return "", fmt.Errorf("no photo page URL for photo %s", photoID)
}

// Polls an upload ticket until processing finishes, and returns the new photo ID.
func (s *session) waitForTicket(ctx context.Context, ticketID string, interval time.Duration) (string, error) {
	var photoID string
	err := ticker.Poll(ctx, interval, func(ctx context.Context) (bool, error) {
		doc, err := s.await(ctx, func(inv *client.Invocation) bool {
			return methods.PhotosUploadCheckTickets(inv, []string{ticketID}, nil)
		})
		if err != nil {
			return false, err
		}
		t := doc.Path("rsp", "uploader", "ticket")
		switch {
		case t == nil || t.Attr("invalid") == "1":
			return false, fmt.Errorf("invalid upload ticket %s", ticketID)
		case t.Attr("complete") == "1":
			photoID = t.Attr("photoid")
			return true, nil
		case t.Attr("complete") == "2":
			return false, fmt.Errorf("processing failed for upload ticket %s", ticketID)
		}
		s.logger.Debug("upload ticket pending", "ticket", ticketID)
		return false, nil
	})
	return photoID, err
}
