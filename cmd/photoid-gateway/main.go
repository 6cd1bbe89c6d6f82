// ABOUTME: Entry point for photoid-gateway, the LINE photo identifier bot
// ABOUTME: Dispatches the serve, health, uploads, and token subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/photoid-gateway/internal/config"
	"github.com/2389/photoid-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _           _        _     _
  _ __ | |__   ___ | |_ ___ (_) __| |
 | '_ \| '_ \ / _ \| __/ _ \| |/ _' |
 | |_) | | | | (_) | || (_) | | (_| |
 | .__/|_| |_|\___/ \__\___/|_|\__,_|
 |_|
`

// defaultConfigFiles are tried in order when PHOTOID_CONFIG is unset.
var defaultConfigFiles = []string{"photoid.yaml", "photoid.yml", "photoid.toml"}

// getConfigPath returns the path to the config file, or "" to configure
// from the environment alone.
// Priority: PHOTOID_CONFIG env var > ./photoid.{yaml,yml,toml}
func getConfigPath() string {
	if envPath := os.Getenv("PHOTOID_CONFIG"); envPath != "" {
		return envPath
	}
	for _, name := range defaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func usage() {
	fmt.Println("Usage: photoid-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the webhook server")
	fmt.Println("  health                         Check gateway health")
	fmt.Println("  uploads [--limit N]            List recent uploads from the ledger")
	fmt.Println("  token --name NAME [--ttl 720h] Mint an admin API token")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "uploads":
		err = runUploads(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	source := configPath
	if source == "" {
		source = "(environment)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s", cfg.StorageBackend())
	if cfg.StorageBackend() == config.BackendLocal {
		gray.Printf(" (%s)", cfg.Storage.LocalDir)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Admin API is open (no auth.jwt_secret)")
	}

	fmt.Println()

	logger.Info("starting photoid-gateway",
		"version", version,
		"addr", cfg.Addr(),
		"storage_backend", cfg.StorageBackend(),
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// parseFlags reads "--name value" and "--name=value" style flags.
// Unknown flags and stray arguments are errors.
func parseFlags(args []string, known ...string) (map[string]string, error) {
	values := make(map[string]string)
	isKnown := func(name string) bool {
		for _, k := range known {
			if k == name {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !isKnown(name) {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 20, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("--limit must be a positive integer")
	}
	return n, nil
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 30 * 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, errors.New("--ttl must be positive")
	}
	return ttl, nil
}
