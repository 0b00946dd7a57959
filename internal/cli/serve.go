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

package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymint/internal/config"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
	"github.com/jeremyhahn/go-keymint/pkg/logging"
	"github.com/jeremyhahn/go-keymint/pkg/ratelimit"
	"github.com/jeremyhahn/go-keymint/pkg/softcontext"
	"github.com/jeremyhahn/go-keymint/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch loop over stdin/stdout",
	Long: `serve loads keymintd's configuration, builds a software Context and
Dispatcher, and drives the Dispatcher from a length-prefixed CBOR request
stream on stdin, writing framed CBOR responses to stdout.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, globals.ConfigFile)
	if err != nil {
		return fmt.Errorf("keymintd: %w", err)
	}

	debug := globals.Debug || cfg.Logging.IsDebug()
	log := logging.NewLogger(debug)

	masterKey, err := afero.ReadFile(fs, cfg.KeyMint.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("keymintd: read master key: %w", err)
	}

	var rootOfTrust []byte
	if cfg.KeyMint.RootOfTrustPath != "" {
		rootOfTrust, err = afero.ReadFile(fs, cfg.KeyMint.RootOfTrustPath)
		if err != nil {
			return fmt.Errorf("keymintd: read root of trust: %w", err)
		}
	}

	kmVersion, err := config.ParseKmVersion(cfg.Server.KmVersion)
	if err != nil {
		return fmt.Errorf("keymintd: %w", err)
	}

	policy, err := softcontext.NewPolicy(softcontext.PolicyConfig{
		RateLimit: &ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})
	if err != nil {
		return fmt.Errorf("keymintd: build enforcement policy: %w", err)
	}

	var backend keymint.SecureKeyStorage
	if cfg.Storage.Backend == "memory" {
		backend = storage.NewKeyStorage(storage.NewMemory())
	}

	ctx, err := softcontext.New(softcontext.Config{
		OSVersion:    cfg.Server.OSVersion,
		OSPatchlevel: cfg.Server.OSPatchlevel,
		KmVersion:    kmVersion,
		MasterKey:    masterKey,
		RootOfTrust:  rootOfTrust,
		Policy:       policy,
		Storage:      backend,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("keymintd: build context: %w", err)
	}

	var metrics *keymint.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = keymint.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				log.Warnf("keymintd: metrics listener stopped: %v", err)
			}
		}()
	}

	dispatcher := keymint.NewDispatcher(keymint.Config{
		Context:                ctx,
		OperationTableCapacity: cfg.Server.OperationTableCapacity,
		KmDate:                 cfg.Server.KmDate,
		Logger:                 log,
		Metrics:                metrics,
	})

	log.Info("keymintd: serving requests on stdin/stdout")
	return serveLoop(os.Stdin, os.Stdout, dispatcher, log)
}
