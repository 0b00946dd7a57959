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
	"crypto/x509"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymint/pkg/attestation"
	"github.com/jeremyhahn/go-keymint/pkg/encoding"
)

var attestExportKind string

var attestExportCmd = &cobra.Command{
	Use:   "attest-export",
	Short: "Print the soft attestation batch identity as PEM",
	Long: `attest-export prints the process's fixed soft attestation batch
signing key and its two-entry certificate chain (batch, root) in PEM, for
operators archiving the identity a running keymintd process signs
attestation leaves with.`,
	RunE: runAttestExport,
}

func init() {
	attestExportCmd.Flags().StringVar(&attestExportKind, "kind", "EC", "batch key kind: RSA or EC")
	rootCmd.AddCommand(attestExportCmd)
}

func runAttestExport(cmd *cobra.Command, args []string) error {
	table, err := attestation.Default()
	if err != nil {
		return fmt.Errorf("keymintd: %w", err)
	}

	batchDER, rootDER, err := table.Chain(attestExportKind)
	if err != nil {
		return fmt.Errorf("keymintd: %w", err)
	}
	batchCert, err := x509.ParseCertificate(batchDER)
	if err != nil {
		return fmt.Errorf("keymintd: parse batch certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return fmt.Errorf("keymintd: parse root certificate: %w", err)
	}
	chainPEM, err := encoding.EncodeCertificateChainPEM([]*x509.Certificate{batchCert, rootCert})
	if err != nil {
		return fmt.Errorf("keymintd: encode certificate chain: %w", err)
	}

	var keyDER []byte
	var keyAlg x509.PublicKeyAlgorithm
	switch attestExportKind {
	case "RSA":
		key, err := table.RSAKey()
		if err != nil {
			return fmt.Errorf("keymintd: %w", err)
		}
		keyDER, err = encoding.EncodePKCS8(key)
		if err != nil {
			return fmt.Errorf("keymintd: encode batch key: %w", err)
		}
		keyAlg = x509.RSA
	case "EC":
		key, err := table.ECKey()
		if err != nil {
			return fmt.Errorf("keymintd: %w", err)
		}
		keyDER, err = encoding.EncodePKCS8(key)
		if err != nil {
			return fmt.Errorf("keymintd: encode batch key: %w", err)
		}
		keyAlg = x509.ECDSA
	default:
		return fmt.Errorf("keymintd: unknown --kind %q, want RSA or EC", attestExportKind)
	}

	key, err := encoding.DecodePKCS8(keyDER)
	if err != nil {
		return fmt.Errorf("keymintd: decode batch key: %w", err)
	}
	keyPEM, err := encoding.EncodePrivateKeyPEM(key, keyAlg)
	if err != nil {
		return fmt.Errorf("keymintd: encode batch key PEM: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(keyPEM))
	fmt.Fprint(out, string(chainPEM))
	return nil
}
