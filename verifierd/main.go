// Command verifierd serves attestation verification over vsock or TCP for hosts
// that relay enclave output.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdlayher/vsock"
	"github.com/spf13/cobra"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/truststore"
	"github.com/zerocopy-systems/zcp/validation"
)

const defaultVsockPort = 5000

type daemonConfig struct {
	vsockPort        uint32
	listenAddr       string
	trustStorePath   string
	requirementsPath string
	requireProof     bool
	minVersion       string
	logFormat        string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := &daemonConfig{}

	cmd := &cobra.Command{
		Use:   "verifierd",
		Short: "Serve attestation verification requests",
		Long: `verifierd answers verify_attestation, verify_policy_proof and attestation_info
requests, one JSON request per connection.

It listens on vsock by default; pass --listen to serve TCP instead.
The worker pool size is read from the required ZCP_MAX_WORKERS environment variable.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cfg.logFormat)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&cfg.vsockPort, "vsock-port", defaultVsockPort, "vsock port to listen on")
	flags.StringVar(&cfg.listenAddr, "listen", "", "TCP address to listen on instead of vsock, e.g. 127.0.0.1:7443")
	flags.StringVar(&cfg.trustStorePath, "trust-store", "", "Path to trust store YAML (default: accept any signing key)")
	flags.StringVar(&cfg.requirementsPath, "requirements", "", "Path to default policy requirements YAML")
	flags.BoolVar(&cfg.requireProof, "require-proof", false, "Reject attestations without a valid policy proof")
	flags.StringVar(&cfg.minVersion, "min-version", "", "Oldest accepted attestation schema version")
	flags.StringVar(&cfg.logFormat, "log-format", "json", "Log format: json or text")

	return cmd
}

func newLogger(format string) *slog.Logger {
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func runDaemon(ctx context.Context, cfg *daemonConfig, logger *slog.Logger) error {
	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return err
	}

	maxWorkers, err := getRequiredEnvInt("ZCP_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}

	listener, err := listen(cfg)
	if err != nil {
		return err
	}
	logger.Info("verifier listening", "addr", listener.Addr().String())

	err = NewServer(verifier, maxWorkers, logger).Serve(ctx, listener)
	if errors.Is(err, context.Canceled) {
		logger.Info("verifier stopped")
		return nil
	}
	return err
}

func listen(cfg *daemonConfig) (net.Listener, error) {
	if cfg.listenAddr != "" {
		listener, err := net.Listen("tcp", cfg.listenAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create TCP listener: %w", err)
		}
		return listener, nil
	}

	listener, err := vsock.Listen(cfg.vsockPort, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock listener: %w", err)
	}
	return listener, nil
}

func buildVerifier(cfg *daemonConfig, logger *slog.Logger) (*validation.Verifier, error) {
	verifier := &validation.Verifier{
		RequireProof: cfg.requireProof,
		Logger:       logger,
	}

	if cfg.trustStorePath != "" {
		store, _, err := truststore.LoadFromFile(cfg.trustStorePath)
		if err != nil {
			return nil, err
		}
		verifier.Trust = store
		logger.Info("trust store loaded", "path", cfg.trustStorePath, "entries", store.Len())
	} else {
		logger.Warn("no trust store configured: any signing key is accepted")
	}

	if cfg.requirementsPath != "" {
		req, err := validation.LoadRequirementsFromFile(cfg.requirementsPath)
		if err != nil {
			return nil, err
		}
		verifier.Requirements = req
	}

	if cfg.minVersion != "" {
		version, ok := core.ParseVersion(cfg.minVersion)
		if !ok {
			return nil, fmt.Errorf("invalid --min-version %q: expected major.minor", cfg.minVersion)
		}
		verifier.MinVersion = &version
	}

	return verifier, nil
}
