package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	sharedcfg "github.com/Skotchmaster/student_records/pkg/config"
	"github.com/Skotchmaster/student_records/pkg/events"
	"github.com/Skotchmaster/student_records/pkg/revocation"
	"github.com/Skotchmaster/student_records/pkg/servicetoken"
	"github.com/Skotchmaster/student_records/pkg/tokens"
)

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// argOrStdin returns args[0], or the first line of stdin when args is empty
// or "-".
func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no input")
	}
	return line, nil
}

func newHashPasswordCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password [password|-]",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := argOrStdin(cmd, args)
			if err != nil {
				return fmt.Errorf("password: %w", err)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")
	return cmd
}

type inspection struct {
	Subject   string     `json:"sub"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	Type      string     `json:"typ,omitempty"`
	TokenID   string     `json:"jti,omitempty"`
	Issuer    string     `json:"iss,omitempty"`
	Audience  []string   `json:"aud,omitempty"`
	IssuedAt  *time.Time `json:"iat,omitempty"`
	ExpiresAt *time.Time `json:"exp,omitempty"`
	Expired   bool       `json:"expired"`
	Verified  *bool      `json:"verified,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func newInspectTokenCommand(env envconfig.Lookuper) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "inspect-token [token|-]",
		Short: "Decode a token's claims (the signature is never printed)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := argOrStdin(cmd, args)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

			codec := tokens.NewCodec(nil, "", "")
			if verify {
				var cfg struct{ Tokens sharedcfg.Tokens }
				if err := sharedcfg.LoadFrom(contextOf(cmd), &cfg, env); err != nil {
					return err
				}
				codec = cfg.Tokens.Codec()
			}

			claims, err := codec.ReadClaimsUnverified(raw)
			if err != nil {
				return err
			}
			out := inspection{
				Subject:  claims.UserID(),
				Email:    claims.Email,
				Role:     claims.Role,
				Type:     claims.Type,
				TokenID:  claims.TokenID(),
				Issuer:   claims.Issuer,
				Audience: claims.Audience,
			}
			if claims.IssuedAt != nil {
				iat := claims.IssuedAt.Time.UTC()
				out.IssuedAt = &iat
			}
			if left, ok := claims.Remaining(time.Now()); ok {
				exp := claims.ExpiresAt.Time.UTC()
				out.ExpiresAt = &exp
				out.Expired = left == 0
			}
			if verify {
				ok := true
				if claims.IsRefresh() {
					_, err = codec.ValidateRefreshToken(raw)
				} else {
					_, err = codec.ValidateAccessToken(raw)
				}
				if err != nil {
					ok = false
					out.Error = err.Error()
				}
				out.Verified = &ok
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Also check signature, issuer, audience and expiry using JWT_* settings")
	return cmd
}

func newRevokeCommand(env envconfig.Lookuper, publisher publisherFunc) *cobra.Command {
	var (
		jti string
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Mark a token id as revoked in the shared revocation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)
			var cfg struct {
				Revocation   sharedcfg.Revocation
				KafkaBrokers []string `env:"KAFKA_BROKERS"`
				KafkaTopic   string   `env:"KAFKA_TOPIC,default=auth_events"`
			}
			if err := sharedcfg.LoadFrom(ctx, &cfg, env); err != nil {
				return err
			}
			client, err := revocation.OpenRedis(ctx, cfg.Revocation.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			store := revocation.NewRedisStore(client, cfg.Revocation.KeyPrefix, cfg.Revocation.Timeout)
			if err := store.MarkRevoked(ctx, jti, ttl); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "revoked %s for %s\n", jti, ttl); err != nil {
				return err
			}

			pub := publisher(cfg.KafkaBrokers, cfg.KafkaTopic)
			defer pub.Close()
			ev := events.Event{Type: events.TypeTokenRevoked, TokenID: jti, OccurredAt: time.Now().UTC()}
			if err := pub.Publish(ctx, ev); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: revocation event not published: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jti, "jti", "", "Token id to revoke")
	cmd.Flags().DurationVar(&ttl, "ttl", tokens.DefaultAccessTTL, "How long the revocation is kept; use the token's remaining lifetime")
	_ = cmd.MarkFlagRequired("jti")
	return cmd
}

func newServiceTokenCommand(env envconfig.Lookuper) *cobra.Command {
	var (
		audience string
		show     bool
	)

	cmd := &cobra.Command{
		Use:   "service-token",
		Short: "Run a client-credentials exchange and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)
			var cfg struct {
				TokenURL     string `env:"S2S_TOKEN_URL,required"`
				ClientID     string `env:"S2S_CLIENT_ID,required"`
				ClientSecret string `env:"S2S_CLIENT_SECRET,required"`
			}
			if err := sharedcfg.LoadFrom(ctx, &cfg, env); err != nil {
				return err
			}

			tok, err := servicetoken.NewExchanger(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret).GetServiceToken(ctx, audience)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "audience: %s\ntoken_type: %s\nexpires_at: %s\n",
				audience, tok.TokenType, tok.ExpiresAt.UTC().Format(time.RFC3339))
			if show {
				fmt.Fprintf(w, "access_token: %s\n", tok.AccessToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&audience, "audience", "", "Target service audience")
	cmd.Flags().BoolVar(&show, "print", false, "Print the access token itself")
	_ = cmd.MarkFlagRequired("audience")
	return cmd
}
