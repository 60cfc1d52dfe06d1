package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/cpstats/internal/config"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
	"github.com/codeGROOVE-dev/cpstats/pkg/token"
	"github.com/codeGROOVE-dev/cpstats/pkg/verify"
)

var errNotVerified = errors.New("profile does not carry the verification code")

type verifyResult struct {
	Platform profile.Platform `json:"platform"`
	URL      string           `json:"url"`
	Verified bool             `json:"verified"`
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <platform> <url> <code>",
		Short: "Check that a profile carries a verification code",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

func (a *app) runVerify(ctx context.Context, name, profileURL, code string) error {
	platform, err := profile.ParsePlatform(name)
	if err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	opts := []verify.Option{verify.WithLogger(a.logger)}
	if t := a.file.HTTP.Timeout; t != nil {
		opts = append(opts, verify.WithTimeout(*t))
	}
	opts = append(opts, a.verifyOpts...)
	cache, err := a.cache()
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				a.logger.Warn("failed to close cache", "error", err)
			}
		}()
		opts = append(opts, verify.WithHTTPCache(cache))
	}

	v, err := verify.New(ctx, opts...)
	if err != nil {
		return err
	}
	ok, err := v.Verify(ctx, platform, profileURL, code)
	if err != nil {
		return err
	}
	if err := a.outputJSON(verifyResult{Platform: platform, URL: profileURL, Verified: ok}); err != nil {
		return err
	}
	if !ok {
		return errNotVerified
	}
	return nil
}

func newTokenCmd(a *app) *cobra.Command {
	var subject, role, check string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token, or check one with --check",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			issuer, err := token.New(config.Or(a.file.Token.Secret, ""), token.WithTTL(config.Or(a.file.Token.TTL, token.DefaultTTL)), token.WithClock(a.now))
			if err != nil {
				return fmt.Errorf("%w (set [token] secret or %s)", err, config.EnvTokenSecret)
			}
			if check != "" {
				claims, err := issuer.Verify(check)
				if err != nil {
					return err
				}
				return a.outputJSON(claims)
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			tok, err := issuer.Issue(subject, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id the token is issued to")
	cmd.Flags().StringVar(&role, "role", token.DefaultRole, "role claim")
	cmd.Flags().StringVar(&check, "check", "", "verify this token and print its claims")
	return cmd
}
