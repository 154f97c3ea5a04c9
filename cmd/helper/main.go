package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/carlmjohnson/versioninfo"
	oauth "github.com/haileyok/oauth-pkce-golang"
	"github.com/haileyok/oauth-pkce-golang/internal/helpers"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "OAuth PKCE Golang Helper",
		Version: versioninfo.Short(),
		Commands: []*cli.Command{
			runGeneratePkce,
			runGenerateSessionSecret,
		},
	}

	app.RunAndExitOnError()
}

type pkcePair struct {
	Verifier  string `json:"code_verifier"`
	Challenge string `json:"code_challenge"`
	Method    string `json:"code_challenge_method"`
}

func generatePkcePair() (*pkcePair, error) {
	verifier, err := oauth.GenerateVerifier()
	if err != nil {
		return nil, err
	}

	return &pkcePair{
		Verifier:  verifier,
		Challenge: oauth.DeriveChallenge(verifier),
		Method:    oauth.CodeChallengeMethod,
	}, nil
}

var runGeneratePkce = &cli.Command{
	Name:  "generate-pkce",
	Usage: "print a pkce verifier and its s256 challenge as json",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "verifier",
			Usage:    "derive the challenge for an existing verifier instead of generating one",
			Required: false,
		},
	},
	Action: func(cmd *cli.Context) error {
		var pair *pkcePair
		if v := cmd.String("verifier"); v != "" {
			pair = &pkcePair{
				Verifier:  v,
				Challenge: oauth.DeriveChallenge(v),
				Method:    oauth.CodeChallengeMethod,
			}
		} else {
			generated, err := generatePkcePair()
			if err != nil {
				return err
			}
			pair = generated
		}

		return writeJson(cmd.App.Writer, pair)
	},
}

var runGenerateSessionSecret = &cli.Command{
	Name:  "generate-session-secret",
	Usage: "print a random value suitable for SESSION_SECRET",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "out",
			Usage: "append SESSION_SECRET=<value> to this env file instead of printing",
		},
	},
	Action: func(cmd *cli.Context) error {
		secret, err := helpers.GenerateToken(32)
		if err != nil {
			return err
		}

		out := cmd.String("out")
		if out == "" {
			_, err := fmt.Fprintln(cmd.App.Writer, secret)
			return err
		}

		f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = fmt.Fprintf(f, "SESSION_SECRET=%s\n", secret)
		return err
	},
}

func writeJson(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
