// Command mint-token issues an access token for a metalookup client.
//
// Usage:
//
//	JWT_SECRET=... go run ./cmd/mint-token -sub library-app -name "Library"
//
// The token is printed on stdout; pass it as "Authorization: Bearer <token>", or as
// the access_token query parameter on /ws/ routes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/auth"
	"github.com/strefethen/metalookup-go/internal/config"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{Name: "mint-token", Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("mint token", "error", err)
		os.Exit(2)
	}
}

func run(cfg config.Config, args []string, out io.Writer, logger hclog.Logger) error {
	flags := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	sub := flags.String("sub", "", "client id (defaults to a random uuid)")
	name := flags.String("name", "metalookup client", "client display name")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *sub == "" {
		*sub = uuid.NewString()
	}
	token, expiresIn, err := auth.NewIssuer(cfg).Mint(auth.TokenPayload{Sub: *sub, ClientName: *name})
	if err != nil {
		return err
	}

	logger.Info("token minted", "sub", *sub, "expires_in_sec", expiresIn)
	_, err = fmt.Fprintln(out, token)
	return err
}
