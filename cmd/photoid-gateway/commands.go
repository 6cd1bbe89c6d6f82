// ABOUTME: Operator subcommands that talk to a running gateway or its database
// ABOUTME: Implements health, uploads, and token

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/photoid-gateway/internal/auth"
	"github.com/2389/photoid-gateway/internal/config"
	"github.com/2389/photoid-gateway/internal/store"
)

// localAddr turns a wildcard listen host into one the CLI can dial.
func localAddr(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", localAddr(cfg))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	color.New(color.FgGreen).Println("healthy")
	return nil
}

func runUploads(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "limit", "identifier")
	if err != nil {
		return err
	}
	limit, err := parseLimit(flags["limit"])
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	uploads, err := s.ListUploads(ctx, store.UploadFilter{
		Identifier: flags["identifier"],
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	if len(uploads) == 0 {
		fmt.Println("no uploads recorded")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	color.New(color.FgCyan).Fprintln(tw, "CREATED\tID\tFILE\tBACKEND\tSIZE\tCONVERSATION")
	for _, u := range uploads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			u.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			u.Identifier,
			u.Filename,
			u.Backend,
			u.SizeBytes,
			u.ConversationKey,
		)
	}
	return tw.Flush()
}

func runToken(args []string) error {
	flags, err := parseFlags(args, "name", "ttl")
	if err != nil {
		return err
	}
	name := flags["name"]
	if name == "" {
		return fmt.Errorf("--name flag is required")
	}
	ttl, err := parseTTL(flags["ttl"])
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (PHOTOID_JWT_SECRET) is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(name, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "subject %s, expires %s\n", name, time.Now().Add(ttl).Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}
