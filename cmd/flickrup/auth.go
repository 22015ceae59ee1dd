package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bluesky-social/photoapi/apicontext"
	"github.com/bluesky-social/photoapi/client"
	"github.com/bluesky-social/photoapi/methods"

	"github.com/adrg/xdg"
	"github.com/urfave/cli/v2"
)

var ErrNoAuthState = errors.New("no saved auth token found")

const stateFileName = "flickrup/auth.json"

type AuthState struct {
	APIKey   string `json:"api_key"`
	Token    string `json:"token"`
	NSID     string `json:"nsid,omitempty"`
	Username string `json:"username,omitempty"`
	Perms    string `json:"perms,omitempty"`
}

func persistAuthState(path string, st *AuthState) error {
	if path == "" {
		p, err := xdg.StateFile(stateFileName)
		if err != nil {
			return err
		}
		path = p
	} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.Write(b)
	return err
}

func loadAuthState(path string) (*AuthState, error) {
	if path == "" {
		p, err := xdg.SearchStateFile(stateFileName)
		if err != nil {
			return nil, ErrNoAuthState
		}
		path = p
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoAuthState
	}
	if err != nil {
		return nil, err
	}

	var st AuthState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("reading auth state %s: %w", path, err)
	}
	return &st, nil
}

func wipeAuthState(path string) error {
	if path == "" {
		p, err := xdg.SearchStateFile(stateFileName)
		if err != nil {
			return nil
		}
		path = p
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var cmdAuthenticate = &cli.Command{
	Name:  "authenticate",
	Usage: "start the browser login flow; prints a frob for 'gettoken'",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "fresh",
			Usage: "forget any saved auth token first",
		},
		&cli.StringFlag{
			Name:  "perms",
			Usage: "permission level to request (read, write, delete)",
			Value: "write",
		},
	},
	Action: runAuthenticate,
}

func runAuthenticate(cctx *cli.Context) error {
	ctx := cctx.Context
	sess, err := newSession(cctx)
	if err != nil {
		return err
	}
	if cctx.Bool("fresh") {
		if err := wipeAuthState(sess.statePath); err != nil {
			return err
		}
		sess.apiCtx.SetAuthToken("")
	}

	doc, err := sess.await(ctx, func(inv *client.Invocation) bool {
		return methods.AuthGetFrob(inv, nil)
	})
	if err != nil {
		sess.out.Line("Error", err)
		return err
	}
	frob := doc.Path("rsp", "frob").Text()
	if frob == "" {
		return fmt.Errorf("no frob in response: %s", doc)
	}

	loginURL, err := sess.apiCtx.LoginURL(frob, cctx.String("perms"))
	if err != nil {
		sess.out.Line("Error", err)
		return err
	}
	sess.out.Line("LoginURL", loginURL)
	sess.out.Line("FrobID", frob)
	return nil
}

var cmdGetToken = &cli.Command{
	Name:      "gettoken",
	Usage:     "exchange an approved frob for an auth token, and save it",
	ArgsUsage: "<frob>",
	Action:    runGetToken,
}

func runGetToken(cctx *cli.Context) error {
	ctx := cctx.Context
	frob := cctx.Args().First()
	if frob == "" {
		return fmt.Errorf("need to provide a frob")
	}
	sess, err := newSession(cctx)
	if err != nil {
		return err
	}

	doc, err := sess.await(ctx, func(inv *client.Invocation) bool {
		return methods.AuthGetToken(inv, frob, nil)
	})
	if err != nil {
		sess.out.Line("Error", err)
		return err
	}
	auth := doc.Path("rsp", "auth")
	st := &AuthState{
		APIKey:   sess.apiCtx.APIKey(),
		Token:    auth.Doc("token").Text(),
		Perms:    auth.Doc("perms").Text(),
		NSID:     auth.Doc("user").Attr("nsid"),
		Username: auth.Doc("user").Attr("username"),
	}
	if st.Token == "" {
		return fmt.Errorf("no token in response: %s", doc)
	}
	if err := persistAuthState(sess.statePath, st); err != nil {
		return fmt.Errorf("saving auth token: %w", err)
	}
	sess.out.Line("Token", st.Token)
	return nil
}

var cmdCheckToken = &cli.Command{
	Name:   "checktoken",
	Usage:  "verify the configured or saved auth token",
	Action: runCheckToken,
}

func runCheckToken(cctx *cli.Context) error {
	ctx := cctx.Context
	sess, err := newSession(cctx)
	if err != nil {
		return err
	}
	if sess.apiCtx.AuthToken() == "" {
		sess.out.Line("Error", apicontext.ErrNoAuthToken)
		return apicontext.ErrNoAuthToken
	}

	doc, err := sess.await(ctx, func(inv *client.Invocation) bool {
		return methods.AuthCheckToken(inv, nil)
	})
	if err != nil {
		sess.out.Line("Error", err)
		return err
	}
	auth := doc.Path("rsp", "auth")
	sess.out.Line("Token", auth.Doc("token").Text())
	sess.out.Line("Perms", auth.Doc("perms").Text())
	sess.out.Line("User", auth.Doc("user").Attr("username"))
	return nil
}
