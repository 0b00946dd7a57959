// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the keymintd command-line entrypoint: flag and
// config wiring, and the serve subcommand that drives a Dispatcher from a
// framed CBOR request stream.
package cli

import (
	"github.com/spf13/cobra"
)

var globals *globalFlags

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "keymintd",
	Short: "keymintd - pure software KeyMint dispatch service",
	Long: `keymintd hosts a pure software implementation of the KeyMint key
management contract: key generation and lifecycle, operation begin/update/
finish/abort, and remote key provisioning, all backed by an in-process
software Context with no secure hardware element.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	globals = newGlobalFlags()

	rootCmd.PersistentFlags().StringVar(&globals.ConfigFile, "config", "",
		"path to the keymintd configuration file")
	rootCmd.PersistentFlags().BoolVar(&globals.Debug, "debug", false,
		"enable debug logging, overriding logging.level in the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
