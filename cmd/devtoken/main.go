// devtoken mints an identity credential accepted by the server's dev
// verifier, for local testing without a Google account.
//
//	devtoken --sub alice --name Alice | xargs -I{} curl -d '{"credential":"{}"}' localhost:8080/api/login
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"chatrelay/internal/config"
	"chatrelay/internal/identity"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		subject string
		name    string
		email   string
		secret  string
		ttl     time.Duration
	)
	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVarP(&subject, "sub", "s", "", "subject (stable user id)")
	flagSet.StringVarP(&name, "name", "n", "", "display name")
	flagSet.StringVar(&email, "email", "", "email address")
	flagSet.StringVar(&secret, "secret", config.Load().DevTokenSecret, "HMAC secret (default $DEV_TOKEN_SECRET)")
	flagSet.DurationVar(&ttl, "ttl", 10*time.Minute, "credential lifetime")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if subject == "" || secret == "" {
		return fmt.Errorf("--sub and --secret are required")
	}
	token, err := identity.IssueDevCredential(subject, name, email, secret, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
