package main

import (
	"fmt"

	"github.com/bluesky-social/photoapi/client"
	"github.com/bluesky-social/photoapi/methods"

	"github.com/urfave/cli/v2"
)

var cmdCall = &cli.Command{
	Name:      "call",
	Usage:     "call an API method and print the response as JSON",
	ArgsUsage: "<method> [key=value...]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "auth",
			Usage: "force an authenticated call, even for methods not known to need it",
		},
		&cli.BoolFlag{
			Name:  "post",
			Usage: "send parameters as a multipart POST body",
		},
		&cli.StringSliceFlag{
			Name:  "arrayed",
			Usage: "element names to always render as JSON arrays",
		},
	},
	Action: runCall,
}

func runCall(cctx *cli.Context) error {
	ctx := cctx.Context
	if cctx.Args().Len() < 1 {
		return fmt.Errorf("need to provide an API method name")
	}
	method := cctx.Args().First()
	params, err := parseParams(cctx.Args().Tail())
	if err != nil {
		return err
	}
	if cctx.Bool("auth") {
		params[client.ParamForceAuth] = nil
	}

	sess, err := newSession(cctx)
	if err != nil {
		return err
	}
	var opts []client.Option
	if cctx.Bool("post") {
		opts = append(opts, client.WithPOST())
	}
	if tags := cctx.StringSlice("arrayed"); len(tags) > 0 {
		opts = append(opts, client.WithArrayedTags(tags...))
	}

	doc, err := sess.await(ctx, func(inv *client.Invocation) bool {
		return methods.Invoke(inv, method, params, nil)
	}, opts...)
	if err != nil {
		sess.out.Line("Error", err)
		return err
	}
	sess.out.Text(doc.String())
	return nil
}
