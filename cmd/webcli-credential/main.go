// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// webcli-credential mints and inspects webcli credentials using the
// same configuration (file and environment) as webcli-server, so a
// credential it mints is accepted by a server sharing the secret.
//
//	webcli-credential mint --id 42 --email dev@example.com --name Dev
//	webcli-credential inspect <credential>
//
// mint is for development and automation where the Google login flow
// is unavailable.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/codec"
	"github.com/bureau-foundation/webcli/lib/config"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/process"
	"github.com/bureau-foundation/webcli/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, clock.Real()); err != nil {
		process.Fatal(err)
	}
}

const usage = `usage:
  webcli-credential mint --id ID [--email EMAIL] [--name NAME] [--ttl DURATION] [--config FILE]
  webcli-credential inspect [--config FILE] CREDENTIAL
  webcli-credential --version`

func run(args []string, stdout io.Writer, clk clock.Clock) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "mint":
		return mint(args[1:], stdout, clk)
	case "inspect":
		return inspect(args[1:], stdout, clk)
	case "--version":
		fmt.Fprintf(stdout, "webcli-credential %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q\n%s", args[0], usage)
	}
}

func loadKeys(configPath string) (*config.Config, *credential.KeySet, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	buffer, err := cfg.LoadSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("loading credential secret: %w", err)
	}
	defer buffer.Close()

	keys, err := credential.DeriveKeySet(buffer.Bytes())
	if err != nil {
		return nil, nil, err
	}
	return cfg, keys, nil
}

func mint(args []string, stdout io.Writer, clk clock.Clock) error {
	var (
		identity   credential.Identity
		ttl        time.Duration
		configPath string
	)
	flagSet := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	flagSet.StringVar(&identity.ID, "id", "", "user ID (required)")
	flagSet.StringVar(&identity.Email, "email", "", "user email")
	flagSet.StringVar(&identity.Name, "name", "", "display name")
	flagSet.DurationVar(&ttl, "ttl", 0, "lifetime (default: the configured credential TTL)")
	flagSet.StringVarP(&configPath, "config", "c", "", "configuration file (default: $WEBCLI_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if identity.ID == "" {
		return errors.New("--id is required")
	}

	cfg, keys, err := loadKeys(configPath)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = cfg.CredentialTTL()
	}
	if cfg.UsesInsecureSecret() {
		fmt.Fprintln(os.Stderr, "warning: signing with the built-in default secret")
	}

	raw, _, err := credential.NewIssuer(keys.SigningKey, ttl, clk).Mint(identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, raw)
	return nil
}

func inspect(args []string, stdout io.Writer, clk clock.Clock) error {
	var configPath string
	flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "configuration file (default: $WEBCLI_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("inspect takes exactly one credential")
	}
	raw := flagSet.Arg(0)

	payload, _, err := credential.Decode(raw)
	if err != nil {
		return err
	}
	diagnostic, err := codec.Diagnose(payload)
	if err != nil {
		return fmt.Errorf("decoding claims: %w", err)
	}
	fmt.Fprintf(stdout, "claims: %s\n", diagnostic)

	_, keys, err := loadKeys(configPath)
	if err != nil {
		return err
	}
	claims, err := credential.Verify(keys.VerifyingKey, raw, clk.Now())
	if err != nil {
		fmt.Fprintf(stdout, "status: rejected (%v)\n", err)
		return nil
	}
	fmt.Fprintf(stdout, "status: valid for %s until %s\n",
		claims.Email, claims.ExpiryTime().UTC().Format(time.RFC3339))
	return nil
}
