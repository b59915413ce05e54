// gatectl is the operator CLI for the condoplex gateway: mint service
// tokens, seed policy grants, poke health endpoints.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"condoplex.org/internal/httpapi"
	"condoplex.org/internal/policy"
)

func main() {
	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operate a condoplex gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(tokenCmd(), grantCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gatectl:", err)
		os.Exit(1)
	}
}

func tokenCmd() *cobra.Command {
	var (
		secret  string
		issuer  string
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("CONDOPLEX_TOKEN_SECRET")
			}
			verifier := httpapi.NewServiceTokenVerifier(secret, issuer)
			if verifier == nil {
				return fmt.Errorf("a token secret is required (--secret or CONDOPLEX_TOKEN_SECRET)")
			}
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			token, expiresAt, err := verifier.Mint(subject, roles, ttl)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
				"token":      token,
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "condoplex-gateway", "token issuer")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (service name)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted to the token (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	return cmd
}

func grantCmd() *cobra.Command {
	var (
		dsn     string
		role    string
		action  string
		subject string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Insert a policy grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("CONDOPLEX_PG_DSN")
			}
			if dsn == "" {
				return fmt.Errorf("a Postgres DSN is required (--dsn or CONDOPLEX_PG_DSN)")
			}
			store, err := policy.Open(dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := store.Ensure(ctx, []policy.Grant{{Role: role, Action: action, Subject: subject}}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s %s on %s\n", role, action, subject)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	cmd.Flags().StringVar(&action, "action", "", "action")
	cmd.Flags().StringVar(&subject, "subject", "", "subject")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func healthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimSuffix(addr, "/")+"/healthz", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "gateway base URL")
	return cmd
}
