package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/querydash/querydash/internal/cli/querydashctl"
	"github.com/querydash/querydash/internal/config"
)

func main() {
	if err := config.LoadDotEnv(config.EnvFiles(os.LookupEnv)...); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(2)
	}
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("QUERYDASH_CLI_TIMEOUT")), 10*time.Second)
	options := querydashctl.Options{
		BaseURL: envOr("QUERYDASH_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("QUERYDASH_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := querydashctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid QUERYDASH_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
