// invitectl calls InvitationService over gRPC.
//
//	invitectl [-addr host:port] [-token JWT] <command> [flags]
//
// Commands: create, get, list, cancel, resend, validate, accept. Administrative commands need a
// staff access token (-token or INVITECTL_TOKEN); validate and accept do not.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	invitationv1 "travel-cms/backend/api/invitation/v1"
)

const callTimeout = 15 * time.Second

var errUsage = errors.New("usage: invitectl [-addr host:port] [-token JWT] <create|get|list|cancel|resend|validate|accept> [flags]")

type dialFunc func(addr string) (*grpc.ClientConn, error)

func dialInsecure(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, dialInsecure); err != nil {
		fmt.Fprintln(os.Stderr, "invitectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, dial dialFunc) error {
	global := flag.NewFlagSet("invitectl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	addr := global.String("addr", envOr("INVITECTL_ADDR", "localhost:8080"), "gRPC server address")
	token := global.String("token", os.Getenv("INVITECTL_TOKEN"), "staff access token")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]
	call, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	invoke := call(fs)
	if err := fs.Parse(cmdArgs); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	conn, err := dial(*addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if *token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+*token)
	}
	resp, err := invoke(ctx, invitationv1.NewInvitationServiceClient(conn))
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

type invokeFunc func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error)

// commands binds each subcommand's flags and returns the call to make once they are parsed.
var commands = map[string]func(fs *flag.FlagSet) invokeFunc{
	"create": func(fs *flag.FlagSet) invokeFunc {
		email := fs.String("email", "", "invitee email (required)")
		role := fs.String("role", "", "role to grant (required)")
		trip := fs.String("trip", "", "trip id the invitation is scoped to")
		validity := fs.Duration("validity", 0, "how long the invitation stays valid (1h..168h)")
		meta := metadataFlag{}
		fs.Var(meta, "meta", "metadata key=value (repeatable)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *email == "" || *role == "" {
				return nil, errors.New("-email and -role are required")
			}
			return c.CreateInvitation(ctx, &invitationv1.CreateInvitationRequest{
				Email:           *email,
				Role:            *role,
				TripID:          *trip,
				Metadata:        meta,
				ValiditySeconds: int64(validity.Seconds()),
			})
		}
	},
	"get": func(fs *flag.FlagSet) invokeFunc {
		id := fs.String("id", "", "invitation id (required)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			return c.GetInvitation(ctx, &invitationv1.GetInvitationRequest{ID: *id})
		}
	},
	"list": func(fs *flag.FlagSet) invokeFunc {
		req := &invitationv1.ListInvitationsRequest{}
		fs.StringVar(&req.Status, "status", "", "pending, expired or accepted")
		fs.StringVar(&req.Role, "role", "", "filter by role")
		fs.StringVar(&req.Email, "email", "", "filter by email substring")
		fs.StringVar(&req.InvitedBy, "invited-by", "", "filter by inviter id")
		fs.IntVar(&req.Limit, "limit", 0, "page size (default 20, max 100)")
		fs.IntVar(&req.Offset, "offset", 0, "page offset")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			return c.ListInvitations(ctx, req)
		}
	},
	"cancel": func(fs *flag.FlagSet) invokeFunc {
		id := fs.String("id", "", "invitation id (required)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			return c.CancelInvitation(ctx, &invitationv1.CancelInvitationRequest{ID: *id})
		}
	},
	"resend": func(fs *flag.FlagSet) invokeFunc {
		id := fs.String("id", "", "invitation id (required)")
		validity := fs.Duration("validity", 0, "new validity (1h..168h)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *id == "" {
				return nil, errors.New("-id is required")
			}
			return c.ResendInvitation(ctx, &invitationv1.ResendInvitationRequest{ID: *id, ValiditySeconds: int64(validity.Seconds())})
		}
	},
	"validate": func(fs *flag.FlagSet) invokeFunc {
		secret := fs.String("secret", "", "invitation secret (required)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *secret == "" {
				return nil, errors.New("-secret is required")
			}
			return c.ValidateInvitation(ctx, &invitationv1.ValidateInvitationRequest{Token: *secret})
		}
	},
	"accept": func(fs *flag.FlagSet) invokeFunc {
		secret := fs.String("secret", "", "invitation secret (required)")
		name := fs.String("name", "", "display name (required)")
		password := fs.String("password", os.Getenv("INVITECTL_PASSWORD"), "account password (or INVITECTL_PASSWORD)")
		return func(ctx context.Context, c *invitationv1.InvitationServiceClient) (any, error) {
			if *secret == "" || *name == "" || *password == "" {
				return nil, errors.New("-secret, -name and -password are required")
			}
			return c.AcceptInvitation(ctx, &invitationv1.AcceptInvitationRequest{Token: *secret, DisplayName: *name, Password: *password})
		}
	},
}

// metadataFlag collects repeated key=value pairs.
type metadataFlag map[string]string

func (m metadataFlag) String() string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (m metadataFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("metadata %q: want key=value", s)
	}
	m[strings.TrimSpace(k)] = v
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
