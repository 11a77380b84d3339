// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hwkey.
//
// go-hwkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the hwkey command line tool.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-hwkey/internal/config"
	"github.com/jeremyhahn/go-hwkey/pkg/hwkey"
	"github.com/jeremyhahn/go-hwkey/pkg/metrics"
)

// Options holds the global flags shared by every command.
type Options struct {
	// ConfigFile is the path to the configuration file. Empty reads
	// HWKEY_CONFIG, then falls back to defaults.
	ConfigFile string

	// Backend overrides the configured provider (tpm2, pkcs11, awskms, software)
	Backend string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool
}

// NewRootCmd builds the hwkey command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "hwkey",
		Short: "Hardware-backed P-256 keys and ECDH",
		Long: `hwkey creates P-256 keys inside a hardware key store and computes
ECDH shared secrets without the private key leaving the device.

Supported backends:
  - tpm2:     TPM 2.0
  - pkcs11:   PKCS#11 HSMs and tokens (build with -tags pkcs11)
  - awskms:   AWS Key Management Service (build with -tags awskms)
  - software: password-encrypted PKCS#8, no hardware`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"config file (default is $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&opts.Backend, "backend", "",
		"override the configured backend (tpm2, pkcs11, awskms, software)")
	root.PersistentFlags().StringVarP(&opts.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	root.AddCommand(newVersionCmd(opts))
	root.AddCommand(newCreateCmd(opts))
	root.AddCommand(newPubkeyCmd(opts))
	root.AddCommand(newAgreeCmd(opts))
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// HandleError prints an error and exits with code 1
func HandleError(err error) {
	printer := NewPrinter(string(OutputFormatText), os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

func (o *Options) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(o.OutputFormat, cmd.OutOrStdout())
}

// loadConfig reads the configuration and applies flag overrides.
func (o *Options) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.Load(o.ConfigFile)
	} else {
		cfg, err = config.FromEnvironment()
	}
	if err != nil {
		return nil, err
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openBoundary builds the configured provider. The returned func closes it.
func (o *Options) openBoundary() (*hwkey.Boundary, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger()
	provider, err := cfg.NewProvider(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	logger.Debug("backend opened", "backend", provider.Type().String(),
		"hardware_backed", provider.HardwareBacked(), "metrics", metrics.IsEnabled())
	closeFn := func() {
		logger.MaybeError(provider.Close())
	}
	return hwkey.New(provider, logger), closeFn, nil
}
