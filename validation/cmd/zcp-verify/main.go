package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/truststore"
	"github.com/zerocopy-systems/zcp/validation"
)

// Exit codes
const (
	exitPassed       = 0
	exitFailed       = 1
	exitInvalidInput = 2
)

// errValidationFailed marks a completed run whose verdict was negative
var errValidationFailed = errors.New("validation failed")

// plainTextHandler is a simple slog handler that writes plain text
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct {
	w io.Writer
}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(h.w, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

// cli holds global flags and the output logger for one invocation
type cli struct {
	logger         *slog.Logger
	outputFormat   string
	trustStorePath string
	minVersion     string
	verbose        bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{logger: slog.New(&plainTextHandler{w: stdout})}

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return exitPassed
	case errors.Is(err, errValidationFailed):
		return exitFailed
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitInvalidInput
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zcp-verify",
		Short: "Verify enclave attestations and policy proofs",
		Long: `zcp-verify checks .zcp attestations produced by trading enclaves.

It verifies the enclave's secp256k1 signature over the canonical payload,
optionally checks the signing key against a trust store, and validates any
attached policy proof against the required image and properties.

Exit Codes:
  0 - Validation passed
  1 - Validation failed
  2 - Invalid input or runtime error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.outputFormat != "text" && c.outputFormat != "json" {
				return fmt.Errorf("invalid --format %q: must be text or json", c.outputFormat)
			}
			if !c.verbose {
				// Library logs stay quiet unless asked for
				slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
			} else {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.outputFormat, "format", "text", "Output format: text or json")
	flags.StringVar(&c.trustStorePath, "trust-store", "", "Path to trust store YAML (default: accept any signing key)")
	flags.StringVar(&c.minVersion, "min-version", "", "Oldest accepted attestation schema version, e.g. 1.1")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log verification decisions to stderr")

	root.AddCommand(c.verifyCmd(), c.proofCmd(), c.batchCmd(), c.enrollCmd())
	return root
}

// verifier builds a Verifier from the global flags
func (c *cli) verifier(req *validation.PolicyRequirements, requireProof bool) (*validation.Verifier, error) {
	v := &validation.Verifier{
		Requirements: req,
		RequireProof: requireProof,
	}

	if c.trustStorePath != "" {
		store, _, err := truststore.LoadFromFile(c.trustStorePath)
		if err != nil {
			return nil, err
		}
		v.Trust = store
	}

	if c.minVersion != "" {
		version, ok := core.ParseVersion(c.minVersion)
		if !ok {
			return nil, fmt.Errorf("invalid --min-version %q: expected major.minor", c.minVersion)
		}
		v.MinVersion = &version
	}

	return v, nil
}
