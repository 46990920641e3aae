// Command authclient drives the auth SDK from a terminal. The session is
// kept in the configured secure store (a file by default), so consecutive
// invocations behave like one app session.
//
// Usage:
//
//	authclient <command> [flags]
//
// Run "authclient help" for the command list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/expensly/authclient/internal/app"
	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/pkg/config"
	"github.com/expensly/authclient/internal/sso"
	"github.com/expensly/authclient/pkg/logger"
)

var errUsage = errors.New("usage")

func main() {
	cfg := config.Load()
	if os.Getenv("STORAGE_BACKEND") == "" {
		cfg.Storage.Backend = config.BackendFile
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "authclient",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type command struct {
	name string
	help string
	// restore runs State.Initialize before the action, which contacts the
	// API and may clear a session the server no longer accepts.
	restore bool
	flags   func(fs *flag.FlagSet) func(ctx context.Context, c *cli) (any, error)
}

type cli struct {
	client *app.Client
}

func commands() []command {
	return []command{
		{"status", "restore the persisted session and print the auth state", true, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				return c.client.State.Snapshot(), nil
			}
		}},
		{"cached", "print the stored user and company without contacting the API", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				return c.client.Auth.CachedSession(ctx)
			}
		}},
		{"login", "sign in with email and password", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			email := fs.String("email", "", "account email")
			password := fs.String("password", "", "account password")
			remember := fs.Bool("remember", false, "remember this device")
			return func(ctx context.Context, c *cli) (any, error) {
				if err := c.client.State.Login(ctx, *email, *password, *remember); err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
		{"register", "create an account", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			var req domain.RegisterRequest
			fs.StringVar(&req.FirstName, "first", "", "first name")
			fs.StringVar(&req.LastName, "last", "", "last name")
			fs.StringVar(&req.Email, "email", "", "account email")
			fs.StringVar(&req.Password, "password", "", "password (min 8 characters)")
			fs.StringVar(&req.CompanyName, "company", "", "create a company with this name")
			role := fs.String("role", string(domain.RoleEmployee), "admin, finance or employee")
			return func(ctx context.Context, c *cli) (any, error) {
				req.Role = domain.Role(*role)
				if err := c.client.State.Register(ctx, req); err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
		{"google", "sign in with a Google ID token", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			token := fs.String("id-token", "", "Google ID token")
			return func(ctx context.Context, c *cli) (any, error) {
				if err := c.client.State.LoginWithGoogle(ctx, *token); err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
		{"microsoft", "sign in with a Microsoft access token", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			token := fs.String("access-token", "", "Microsoft Graph access token")
			return func(ctx context.Context, c *cli) (any, error) {
				if err := c.client.State.LoginWithMicrosoft(ctx, *token); err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
		{"sso-begin", "print the provider authorization URL for an SSO sign-in", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			p := ssoFlags(fs)
			state := fs.String("state", "", "opaque state echoed by the provider")
			return func(ctx context.Context, c *cli) (any, error) {
				provider, err := p.provider()
				if err != nil {
					return nil, err
				}
				return provider.Begin(*state), nil
			}
		}},
		{"sso-complete", "exchange an authorization code and sign in", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			p := ssoFlags(fs)
			var flow sso.Flow
			fs.StringVar(&flow.State, "state", "", "state passed to sso-begin")
			fs.StringVar(&flow.Verifier, "verifier", "", "PKCE verifier printed by sso-begin")
			code := fs.String("code", "", "authorization code from the redirect")
			returned := fs.String("returned-state", "", "state from the redirect (defaults to -state)")
			return func(ctx context.Context, c *cli) (any, error) {
				provider, err := p.provider()
				if err != nil {
					return nil, err
				}
				if *returned == "" {
					*returned = flow.State
				}
				token, err := provider.Exchange(ctx, flow, *returned, *code)
				if err != nil {
					return nil, err
				}
				if provider.Kind() == domain.SSOGoogle {
					err = c.client.State.LoginWithGoogle(ctx, token)
				} else {
					err = c.client.State.LoginWithMicrosoft(ctx, token)
				}
				if err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
		{"refresh", "exchange the stored refresh token", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				res, err := c.client.State.Refresh(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"outcome": res.Outcome.String(), "state": c.client.State.Snapshot()}, nil
			}
		}},
		{"logout", "end the session", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				res, err := c.client.State.Logout(ctx)
				if err != nil {
					return nil, err
				}
				out := map[string]any{"revoked": res.Revoked}
				if res.Err != nil {
					out["error"] = res.Err.Error()
				}
				return out, nil
			}
		}},
		{"reset-request", "email a password reset token", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			email := fs.String("email", "", "account email")
			return func(ctx context.Context, c *cli) (any, error) {
				return ok(c.client.State.RequestPasswordReset(ctx, *email))
			}
		}},
		{"reset-confirm", "set a new password with a reset token", false, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			token := fs.String("token", "", "reset token")
			password := fs.String("password", "", "new password")
			return func(ctx context.Context, c *cli) (any, error) {
				return ok(c.client.State.ConfirmPasswordReset(ctx, *token, *password))
			}
		}},
		{"mfa-setup", "provision a TOTP factor", true, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				return c.client.State.SetupMFA(ctx)
			}
		}},
		{"mfa-verify", "verify a TOTP or backup code", true, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			code := fs.String("code", "", "code to verify")
			typ := fs.String("type", string(domain.MFATypeTOTP), "totp or backup")
			return func(ctx context.Context, c *cli) (any, error) {
				return ok(c.client.State.VerifyMFA(ctx, *code, domain.MFAType(*typ)))
			}
		}},
		{"verify-resend", "send a new verification email", true, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			return func(ctx context.Context, c *cli) (any, error) {
				return ok(c.client.State.ResendVerificationEmail(ctx))
			}
		}},
		{"verify-email", "confirm the email address with a token", true, func(fs *flag.FlagSet) func(context.Context, *cli) (any, error) {
			token := fs.String("token", "", "verification token")
			return func(ctx context.Context, c *cli) (any, error) {
				if err := c.client.State.VerifyEmail(ctx, *token); err != nil {
					return nil, err
				}
				return c.client.State.Snapshot(), nil
			}
		}},
	}
}

// run dispatches args to a subcommand and writes its result to out as JSON.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == args[0] {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		usage(out)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(out)
	action := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	client, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	if cmd.restore {
		if err := client.State.Initialize(ctx); err != nil {
			return err
		}
	}

	result, err := action(ctx, &cli{client: client})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: authclient <command> [flags]")
	fmt.Fprintln(out)
	for _, c := range commands() {
		fmt.Fprintf(out, "  %-14s %s\n", c.name, c.help)
	}
}

func ok(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type ssoOptions struct {
	kind         *string
	clientID     *string
	clientSecret *string
	redirect     *string
	tenant       *string
}

func ssoFlags(fs *flag.FlagSet) *ssoOptions {
	return &ssoOptions{
		kind:         fs.String("provider", string(domain.SSOGoogle), "google or microsoft"),
		clientID:     fs.String("client-id", os.Getenv("SSO_CLIENT_ID"), "OAuth client id"),
		clientSecret: fs.String("client-secret", os.Getenv("SSO_CLIENT_SECRET"), "OAuth client secret"),
		redirect:     fs.String("redirect", "http://localhost:8085/callback", "registered redirect URL"),
		tenant:       fs.String("tenant", "common", "Azure AD tenant (microsoft only)"),
	}
}

func (o *ssoOptions) provider() (*sso.Provider, error) {
	cfg := sso.Config{
		ClientID:     *o.clientID,
		ClientSecret: *o.clientSecret,
		RedirectURL:  *o.redirect,
		Tenant:       *o.tenant,
	}
	switch domain.SSOProvider(*o.kind) {
	case domain.SSOGoogle:
		return sso.NewGoogle(cfg), nil
	case domain.SSOMicrosoft:
		return sso.NewMicrosoft(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider %q", *o.kind)
}
