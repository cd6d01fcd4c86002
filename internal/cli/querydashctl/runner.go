package querydashctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	name   string
	method string
	// path holds one %s verb when the command takes a record id.
	path string
}

func (c command) needsID() bool {
	return strings.Contains(c.path, "%s")
}

var commands = []command{
	{"health", http.MethodGet, "/v1/health"},
	{"ready", http.MethodGet, "/v1/ready"},
	{"dashboards", http.MethodGet, "/v1/dashboards"},
	{"dashboard", http.MethodGet, "/v1/dashboards/%s"},
	{"connections", http.MethodGet, "/v1/connections"},
	{"connection-test", http.MethodPost, "/v1/connections/%s/test"},
	{"widget-execute", http.MethodPost, "/v1/widgets/%s/execute"},
	{"widget-chart", http.MethodGet, "/v1/widgets/%s/chart"},
	{"widget-export", http.MethodPost, "/v1/widgets/%s/export"},
	{"widget-exports", http.MethodGet, "/v1/widgets/%s/exports"},
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querydashctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querydash API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	theme := fs.String("theme", "", "chart theme for widget-chart (dark or light)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := lookupCommand(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}

	path := cmd.path
	if cmd.needsID() {
		id := strings.TrimSpace(fs.Arg(1))
		if id == "" {
			_, _ = fmt.Fprintf(stderr, "command %q requires an id argument\n", name)
			return 2
		}
		path = fmt.Sprintf(cmd.path, url.PathEscape(id))
	}
	if name == "widget-chart" && strings.TrimSpace(*theme) != "" {
		path += "?" + url.Values{"theme": []string{strings.TrimSpace(*theme)}}.Encode()
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querydashctl [flags] <command> [id]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		label := cmd.name
		if cmd.needsID() {
			label += " <id>"
		}
		_, _ = fmt.Fprintf(w, "  %-22s %s %s\n", label, cmd.method, strings.ReplaceAll(cmd.path, "%s", "{id}"))
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
