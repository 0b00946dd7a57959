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

package attestation

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// keyDescriptionOID is the Android attestation extension's object
// identifier (1.3.6.1.4.1.11129.2.1.17). The certificate encoder that
// walks a full AuthorizationList into ASN.1 is an external collaborator;
// this build fills the same extension slot with a canonical-CBOR encoding
// of the fields BuildChain actually has on hand.
var keyDescriptionOID = []int{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// KeyDescription is the payload carried in the attestation extension.
type KeyDescription struct {
	_                   struct{} `cbor:",toarray"`
	AttestationVersion  int
	SecurityLevel       string
	AttestationChallenge []byte
	ApplicationID       []byte
	CreationTime        int64
}

var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// BuildChain signs pub as a fresh leaf certificate carrying an attestation
// extension, using kind's batch identity from table, and returns the leaf
// followed by the batch cert and root cert, per GenerateAttestation's
// signing_key==nil path.
func BuildChain(pub crypto.PublicKey, kind string, table *Table, challenge, appID []byte) (chain [][]byte, err error) {
	batchDER, rootDER, err := table.Chain(kind)
	if err != nil {
		return nil, err
	}
	batchCert, err := x509.ParseCertificate(batchDER)
	if err != nil {
		return nil, fmt.Errorf("attestation: parse batch cert: %w", err)
	}

	var signer crypto.Signer
	switch kind {
	case "RSA":
		signer, err = table.RSAKey()
	case "EC":
		signer, err = table.ECKey()
	default:
		return nil, fmt.Errorf("attestation: unknown batch key kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	leafDER, err := signLeaf(pub, signer, batchCert, challenge, appID)
	if err != nil {
		return nil, err
	}
	return [][]byte{leafDER, batchDER, rootDER}, nil
}

// SignWithAttestKey signs pub as a fresh leaf certificate using an
// already-generated ATTEST_KEY's private key as signer, per
// GenerateAttestation's signing_key!=nil path. The caller is responsible
// for appending the attest key's own certificate chain.
func SignWithAttestKey(pub crypto.PublicKey, signer crypto.Signer, issuer []byte, challenge, appID []byte) ([]byte, error) {
	issuerCert := &x509.Certificate{Subject: pkix.Name{CommonName: string(issuer)}}
	if len(issuer) == 0 {
		issuerCert.Subject.CommonName = "Android Keystore Key"
	}
	return signLeaf(pub, signer, issuerCert, challenge, appID)
}

func signLeaf(pub crypto.PublicKey, signer crypto.Signer, issuerCert *x509.Certificate, challenge, appID []byte) ([]byte, error) {
	ext, err := buildExtension(challenge, appID)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "Android Keystore Key"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(30, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{
			{Id: keyDescriptionOID, Critical: false, Value: ext},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuerCert, pub, signer)
	if err != nil {
		return nil, fmt.Errorf("attestation: sign leaf certificate: %w", err)
	}
	return der, nil
}

func buildExtension(challenge, appID []byte) ([]byte, error) {
	desc := KeyDescription{
		AttestationVersion:   200,
		SecurityLevel:        "SOFTWARE",
		AttestationChallenge: challenge,
		ApplicationID:        appID,
		CreationTime:         0,
	}
	return canonicalEncMode.Marshal(desc)
}
