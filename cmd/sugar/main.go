package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/sugarapi/endpoint"
	"github.com/alexjbarnes/sugarapi/internal/config"
	clierrors "github.com/alexjbarnes/sugarapi/internal/errors"
	"github.com/alexjbarnes/sugarapi/internal/logging"
	"github.com/alexjbarnes/sugarapi/state"
	"github.com/alexjbarnes/sugarapi/sugar"
)

var Version = "dev"

const usage = `usage: sugar <command> [args]

commands:
  login                       request a new token with the configured credentials
  refresh                     exchange the refresh token for a new token
  logout                      revoke the current token
  status                      show server and session state
  endpoints                   list registered endpoints
  call <endpoint> [args] [-]  execute an endpoint; "-" reads a JSON payload from stdin
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)

		if len(os.Args) < 2 {
			os.Exit(2)
		}

		return
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.IsProduction(), cfg.LogLevel)
	logger.Debug("sugar starting",
		slog.String("version", Version),
		slog.String("command", cmd),
		slog.String("server", cfg.Server),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stateOpts []state.Option
	if cfg.TokenPassphrase != "" {
		stateOpts = append(stateOpts, state.WithPassphrase(cfg.TokenPassphrase))
	}

	store, err := state.Open(cfg.TokenDB, stateOpts...)
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}
	defer store.Close()

	client, err := newClient(cfg, store, logger)
	if err != nil {
		return err
	}

	switch cmd {
	case "login":
		return login(ctx, client)
	case "refresh":
		return refresh(ctx, client)
	case "logout":
		return logout(ctx, client)
	case "status":
		return status(os.Stdout, client)
	case "endpoints":
		for _, name := range client.Endpoints() {
			fmt.Fprintln(os.Stdout, name)
		}

		return nil
	case "call":
		return call(ctx, client, args, os.Stdin, os.Stdout, logger)
	}

	return fmt.Errorf("%w: unknown command %q", clierrors.ErrUsage, cmd)
}

func newClient(cfg *config.Config, store sugar.TokenStore, logger *slog.Logger) (*sugar.Client, error) {
	httpClient := endpoint.DefaultHTTPClient()

	opts := []sugar.Option{
		sugar.WithTokenStore(store),
		sugar.WithHTTPClient(httpClient),
		sugar.WithLogger(logger),
	}

	if cfg.Catalog != "" {
		extra, err := loadCatalogFile(cfg.Catalog, httpClient)
		if err != nil {
			return nil, err
		}

		logger.Debug("loaded extra endpoints", slog.String("path", cfg.Catalog), slog.Int("count", len(extra)))
		opts = append(opts, sugar.WithEndpoints(extra))
	}

	return sugar.New(cfg.Server, cfg.Credentials(), opts...), nil
}

func loadCatalogFile(path string, httpClient *http.Client) (map[string]endpoint.Factory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	defs, err := endpoint.LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}

	return endpoint.Factories(defs, httpClient), nil
}

func login(ctx context.Context, client *sugar.Client) error {
	ok, err := client.Login(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return clierrors.ErrNoCredentials
	}

	fmt.Fprintf(os.Stdout, "logged in, token expires %s\n", client.Expiration().Format(time.RFC3339))

	return nil
}

func refresh(ctx context.Context, client *sugar.Client) error {
	ok, err := client.RefreshToken(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: no stored token or client secret to refresh with", clierrors.ErrNotAuthenticated)
	}

	fmt.Fprintf(os.Stdout, "token refreshed, expires %s\n", client.Expiration().Format(time.RFC3339))

	return nil
}

func logout(ctx context.Context, client *sugar.Client) error {
	ok, err := client.Logout(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return clierrors.ErrNotAuthenticated
	}

	fmt.Fprintln(os.Stdout, "logged out")

	return nil
}

func status(w io.Writer, client *sugar.Client) error {
	fmt.Fprintf(w, "server:        %s\n", client.Server())
	fmt.Fprintf(w, "api url:       %s\n", client.APIURL())
	fmt.Fprintf(w, "client id:     %s\n", client.Credentials().ClientID())
	fmt.Fprintf(w, "authenticated: %t\n", client.Authenticated())

	if exp := client.Expiration(); !exp.IsZero() {
		fmt.Fprintf(w, "expires:       %s\n", exp.Format(time.RFC3339))
	}

	return nil
}

// ensureSession makes the client authenticated before a call: refresh
// first when possible, otherwise log in.
func ensureSession(ctx context.Context, client *sugar.Client, logger *slog.Logger) error {
	if client.Authenticated() {
		return nil
	}

	ok, err := client.RefreshToken(ctx)
	if err != nil {
		var authErr *sugar.AuthenticationError
		if !errors.As(err, &authErr) {
			return err
		}

		logger.Debug("refresh rejected, logging in", slog.String("error", err.Error()))
	}

	if ok {
		return nil
	}

	ok, err = client.Login(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return clierrors.ErrNoCredentials
	}

	return nil
}

func call(ctx context.Context, client *sugar.Client, args []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: call requires an endpoint name", clierrors.ErrUsage)
	}

	name, rest := args[0], args[1:]

	var payload any

	if n := len(rest); n > 0 && rest[n-1] == "-" {
		rest = rest[:n-1]

		var body map[string]any
		if err := json.NewDecoder(stdin).Decode(&body); err != nil {
			return fmt.Errorf("reading payload from stdin: %w", err)
		}

		payload = body
	}

	if err := ensureSession(ctx, client, logger); err != nil {
		return err
	}

	ep, err := client.Dispatch(name, rest...)
	if err != nil {
		return err
	}

	resp, err := ep.Execute(ctx, payload)
	if err != nil {
		return fmt.Errorf("calling %s: %w", name, err)
	}

	if _, err := stdout.Write(resp.Body); err != nil {
		return err
	}

	fmt.Fprintln(stdout)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, msg := resp.APIError()
		return fmt.Errorf("%w: %s returned %d [%s] %s", clierrors.ErrRequestFailed, name, resp.StatusCode, code, msg)
	}

	return nil
}
