package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/layer-3/folio"
	"github.com/layer-3/folio/core"
	transporthttp "github.com/layer-3/folio/transport/http"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a wallet or email",
	}
	cmd.AddCommand(loginWalletCmd(), loginEmailCmd())
	return cmd
}

func loginWalletCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Log in by signing a challenge with the configured wallet key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *folio.App) error {
				id := core.ProviderID(provider)
				if provider == "" {
					providers := app.Wallet.Providers()
					if len(providers) == 0 {
						return fmt.Errorf("no wallet provider: %w", core.ErrUnknownProvider)
					}
					id = providers[0]
				}

				sess, err := app.LoginWithWallet(ctx, id)
				if err != nil {
					return err
				}
				return printSession(cmd, sess)
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "wallet provider id (default: the configured provider)")
	return cmd
}

func loginEmailCmd() *cobra.Command {
	var register bool

	cmd := &cobra.Command{
		Use:   "email <address>",
		Short: "Log in with email; the password is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, app *folio.App) error {
				login := app.Login
				if register {
					login = app.Register
				}
				sess, err := login(ctx, args[0], password)
				if err != nil {
					return err
				}
				return printSession(cmd, sess)
			})
		},
	}

	cmd.Flags().BoolVar(&register, "register", false, "create the account first")
	return cmd
}

func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *folio.App) error {
				identity, err := app.Me(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, identity)
			})
		},
	}
}

func getCmd() *cobra.Command {
	var (
		query []string
		cache bool
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch a backend path with the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := url.Values{}
			for _, kv := range query {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid query parameter %q, want key=value", kv)
				}
				values.Add(key, value)
			}

			opts := []transporthttp.RequestOption{transporthttp.WithQuery(values)}
			if cache {
				opts = append(opts, transporthttp.WithCache(0))
			}

			return withApp(cmd.Context(), func(ctx context.Context, app *folio.App) error {
				var out json.RawMessage
				if err := app.API.Get(ctx, args[0], &out, opts...); err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter key=value, repeatable")
	cmd.Flags().BoolVar(&cache, "cache", false, "allow a cached response")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and forget the wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *folio.App) error {
				if err := app.Logout(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return err
			})
		},
	}
}

func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv("FOLIO_PASSWORD"); pw != "" {
		return pw, nil
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type sessionView struct {
	Origin      core.Origin    `json:"origin"`
	Identity    *core.Identity `json:"identity,omitempty"`
	ExpiresAt   string         `json:"expiresAt,omitempty"`
	Refreshable bool           `json:"refreshable"`
}

// printSession prints the session without its tokens
func printSession(cmd *cobra.Command, sess core.Session) error {
	view := sessionView{
		Origin:      sess.Origin,
		Identity:    sess.Identity,
		Refreshable: sess.RefreshToken != "",
	}
	if !sess.AccessExpiry.IsZero() {
		view.ExpiresAt = sess.AccessExpiry.Format(time.RFC3339)
	}
	return printJSON(cmd, view)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
