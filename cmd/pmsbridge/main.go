package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/pms"
	"github.com/atvirokodosprendimai/pmsbridge/internal/app"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/catalog"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/usecase"
)

// errViolations makes the validate command exit non-zero without printing the
// violations a second time.
var errViolations = cli.Exit("", 1)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "pmsbridge",
		ReportTimestamp: true,
	})

	if err := newRootCommand(logger).Run(context.Background(), os.Args); err != nil {
		logger.Fatal("pmsbridge", "err", err)
	}
}

func newRootCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "pmsbridge",
		Usage: "Validate LLM tool calls and forward them to the property-management API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "operations-file",
				Sources: cli.EnvVars("PMSBRIDGE_OPERATIONS_FILE"),
				Usage:   "YAML file with extra or overriding operations",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("PMSBRIDGE_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("log level: %w", err)
			}
			logger.SetLevel(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(logger),
			validateCommand(logger),
			toolsCommand(),
		},
	}
}

func serveCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("PMSBRIDGE_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./pmsbridge.sqlite",
				Sources: cli.EnvVars("PMSBRIDGE_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("PMSBRIDGE_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-tenant",
				Value:   "default",
				Sources: cli.EnvVars("PMSBRIDGE_BOOTSTRAP_TENANT"),
				Usage:   "Tenant for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("PMSBRIDGE_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:     "pms-base-url",
				Sources:  cli.EnvVars("PMSBRIDGE_PMS_BASE_URL"),
				Usage:    "Base URL of the property-management API",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "pms-api-key",
				Sources: cli.EnvVars("PMSBRIDGE_PMS_API_KEY"),
				Usage:   "Property-management API key (basic auth user)",
			},
			&cli.StringFlag{
				Name:    "pms-api-secret",
				Sources: cli.EnvVars("PMSBRIDGE_PMS_API_SECRET"),
				Usage:   "Property-management API secret (basic auth password)",
			},
			&cli.DurationFlag{
				Name:    "pms-timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("PMSBRIDGE_PMS_TIMEOUT"),
				Usage:   "Timeout for one upstream request",
			},
			&cli.FloatFlag{
				Name:    "pms-rate",
				Value:   5,
				Sources: cli.EnvVars("PMSBRIDGE_PMS_RATE"),
				Usage:   "Maximum upstream requests per second, 0 for unlimited",
			},
			&cli.IntFlag{
				Name:    "pms-burst",
				Value:   5,
				Sources: cli.EnvVars("PMSBRIDGE_PMS_BURST"),
				Usage:   "Upstream request burst size",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:             c.String("addr"),
				DBPath:           c.String("db-path"),
				BootstrapAPIKey:  c.String("bootstrap-api-key"),
				BootstrapTenant:  c.String("bootstrap-tenant"),
				BootstrapKeyName: c.String("bootstrap-key-name"),
				OperationsFile:   c.String("operations-file"),
				PMS: pms.Config{
					BaseURL:       c.String("pms-base-url"),
					APIKey:        c.String("pms-api-key"),
					APISecret:     c.String("pms-api-secret"),
					Timeout:       c.Duration("pms-timeout"),
					RatePerSecond: c.Float("pms-rate"),
					Burst:         int(c.Int("pms-burst")),
				},
			}

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", "err", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				return shutdown(server)
			case sig := <-sigCh:
				logger.Info("received signal", "signal", sig)
				return shutdown(server)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func validateCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Normalize a JSON argument object offline and print the outbound request",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "operation",
				Aliases:  []string{"o"},
				Usage:    "Operation name",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Value:   "-",
				Usage:   "JSON file with the tool arguments, - for stdin",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ops, err := catalog.LoadFile(c.String("operations-file"))
			if err != nil {
				return err
			}
			raw, err := readArguments(c.String("input"), c.Root().Reader)
			if err != nil {
				return err
			}

			svc := usecase.NewToolService(ops, nil, nil, usecase.WithLogger(logger))
			req, err := svc.Validate(c.String("operation"), raw)
			var verr *domain.ErrValidation
			if errors.As(err, &verr) {
				if err := printJSON(c.Root().Writer, map[string]any{"violations": verr.Violations}); err != nil {
					return err
				}
				return errViolations
			}
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, req)
		},
	}
}

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Print the input JSON schema of every operation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "operation",
				Aliases: []string{"o"},
				Usage:   "Only print this operation",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ops, err := catalog.LoadFile(c.String("operations-file"))
			if err != nil {
				return err
			}
			if name := c.String("operation"); name != "" {
				op, err := ops.Get(name)
				if err != nil {
					return err
				}
				return printJSON(c.Root().Writer, op.InputSchema)
			}
			schemas := make(map[string]json.RawMessage)
			for _, op := range ops.List() {
				schemas[op.Operation.Name] = op.InputSchema
			}
			return printJSON(c.Root().Writer, schemas)
		},
	}
}

func readArguments(path string, stdin io.Reader) (map[string]any, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		r = os.Stdin
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
