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

// Package attestation holds the fixed soft-keymaster batch keys and root
// certificates a software Context signs attestation leaf certificates
// with, grounded on soft_attestation_cert.cpp's kRsaAttestKey/kEcAttestKey
// batch key pairs.
//
// Where the original hardcodes literal DER byte arrays for its batch keys
// and root certificates, this build generates an equivalent fixed pair
// once per process via sync.Once and reuses it for the process lifetime,
// preserving the "one batch identity signs every leaf this device issues"
// property without embedding another language's binary constants.
package attestation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Table holds one process's fixed RSA and EC batch identities.
type Table struct {
	once sync.Once
	err  error

	rsaKey     *rsa.PrivateKey
	rsaCert    []byte // DER, batch cert signed by the RSA root
	rsaRootDER []byte

	ecKey     *ecdsa.PrivateKey
	ecCert    []byte
	ecRootDER []byte
}

var (
	defaultTable   Table
	defaultTableMu sync.Mutex
)

// Default returns the process-wide soft attestation table, generating it on
// first use.
func Default() (*Table, error) {
	defaultTableMu.Lock()
	defer defaultTableMu.Unlock()
	if err := defaultTable.ensure(); err != nil {
		return nil, err
	}
	return &defaultTable, nil
}

func (t *Table) ensure() error {
	t.once.Do(func() {
		var rsaKey, ecKey any
		rsaKey, t.rsaCert, t.rsaRootDER, t.err = generateBatchIdentity("RSA")
		if t.err != nil {
			return
		}
		t.rsaKey = rsaKey.(*rsa.PrivateKey)
		ecKey, t.ecCert, t.ecRootDER, t.err = generateBatchIdentity("EC")
		if t.err != nil {
			return
		}
		t.ecKey = ecKey.(*ecdsa.PrivateKey)
	})
	return t.err
}

// generateBatchIdentity builds a self-signed root certificate and a batch
// key signed by it, mirroring soft_attestation_cert.cpp's kXxxAttestKey +
// kXxxAttestCert + kXxxAttestRootCert triple.
func generateBatchIdentity(kind string) (any, []byte, []byte, error) {
	root := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Google, Inc."},
			CommonName:   "Android Keystore Software Attestation Root",
		},
		NotBefore:             time.Unix(0, 0),
		NotAfter:              time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	leaf := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			Organization: []string{"Google, Inc."},
			CommonName:   "Android Keystore Software Attestation Intermediate",
		},
		NotBefore: time.Unix(0, 0),
		NotAfter:  time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
		KeyUsage:  x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}

	switch kind {
	case "RSA":
		rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: generate RSA root key: %w", err)
		}
		rootDER, err := x509.CreateCertificate(rand.Reader, root, root, &rootKey.PublicKey, rootKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: self-sign RSA root: %w", err)
		}
		rootCert, err := x509.ParseCertificate(rootDER)
		if err != nil {
			return nil, nil, nil, err
		}
		batchKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: generate RSA batch key: %w", err)
		}
		batchDER, err := x509.CreateCertificate(rand.Reader, leaf, rootCert, &batchKey.PublicKey, rootKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: sign RSA batch cert: %w", err)
		}
		return batchKey, batchDER, rootDER, nil

	case "EC":
		rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: generate EC root key: %w", err)
		}
		rootDER, err := x509.CreateCertificate(rand.Reader, root, root, &rootKey.PublicKey, rootKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: self-sign EC root: %w", err)
		}
		rootCert, err := x509.ParseCertificate(rootDER)
		if err != nil {
			return nil, nil, nil, err
		}
		batchKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: generate EC batch key: %w", err)
		}
		batchDER, err := x509.CreateCertificate(rand.Reader, leaf, rootCert, &batchKey.PublicKey, rootKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("attestation: sign EC batch cert: %w", err)
		}
		return batchKey, batchDER, rootDER, nil

	default:
		return nil, nil, nil, fmt.Errorf("attestation: unknown batch key kind %q", kind)
	}
}

// RSAKey returns the fixed RSA batch signing key.
func (t *Table) RSAKey() (*rsa.PrivateKey, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	return t.rsaKey, nil
}

// ECKey returns the fixed EC (P-256) batch signing key.
func (t *Table) ECKey() (*ecdsa.PrivateKey, error) {
	if err := t.ensure(); err != nil {
		return nil, err
	}
	return t.ecKey, nil
}

// Chain returns the (batch cert, root cert) DER pair for the given
// algorithm's batch identity, appended after a freshly generated leaf when
// building an attestation certificate chain.
func (t *Table) Chain(kind string) (batchCert, rootCert []byte, err error) {
	if err := t.ensure(); err != nil {
		return nil, nil, err
	}
	switch kind {
	case "RSA":
		return t.rsaCert, t.rsaRootDER, nil
	case "EC":
		return t.ecCert, t.ecRootDER, nil
	default:
		return nil, nil, fmt.Errorf("attestation: unknown batch key kind %q", kind)
	}
}

// GetEcdsa256KeyFromCert extracts a P-256 public key's affine coordinates
// from a DER certificate, per soft_attestation_cert.cpp's
// GetEcdsa256KeyFromCert (used by remote key provisioning's COSE_Key
// construction).
func GetEcdsa256KeyFromCert(der []byte) (x, y []byte, err error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("attestation: parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, nil, fmt.Errorf("attestation: certificate does not hold a P-256 EC public key")
	}
	xb := make([]byte, 32)
	yb := make([]byte, 32)
	pub.X.FillBytes(xb)
	pub.Y.FillBytes(yb)
	return xb, yb, nil
}
