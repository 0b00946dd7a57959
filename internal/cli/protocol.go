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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// This is not a network transport: it carries no protocol version
// negotiation, no framing beyond a length prefix, and no authentication.
// It exists so `keymintd serve` is a runnable program a caller can drive
// over a pipe; a real deployment would put a proper transport in front of
// the Dispatcher this loop wraps.

// wireParam is the wire form of a keymint.KeyParam. CBOR decodes unsigned
// integers, byte strings and booleans into their default Go types when the
// target is interface{}, which happens to be exactly the set of value
// types KeyParam.Value holds today.
type wireParam struct {
	_     struct{} `cbor:",toarray"`
	Tag   int32
	Value interface{}
}

func toWireParams(params *keymint.AuthorizationSet) []wireParam {
	if params == nil {
		return nil
	}
	slice := params.Slice()
	out := make([]wireParam, len(slice))
	for i, kp := range slice {
		out[i] = wireParam{Tag: int32(kp.Tag), Value: kp.Value}
	}
	return out
}

func fromWireParams(params []wireParam) *keymint.AuthorizationSet {
	kps := make([]keymint.KeyParam, len(params))
	for i, wp := range params {
		kps[i] = keymint.KeyParam{Tag: keymint.Tag(wp.Tag), Value: wp.Value}
	}
	return keymint.NewAuthorizationSet(kps...)
}

// request is the envelope every command over the pipe uses. Fields not
// relevant to Op are left zero.
type request struct {
	Op          string      `cbor:"op"`
	Purpose     int         `cbor:"purpose,omitempty"`
	Handle      uint64      `cbor:"handle,omitempty"`
	KeyBlob     []byte      `cbor:"key_blob,omitempty"`
	Params      []wireParam `cbor:"params,omitempty"`
	Input       []byte      `cbor:"input,omitempty"`
	Signature   []byte      `cbor:"signature,omitempty"`
	Format      int         `cbor:"format,omitempty"`
	KeyMaterial []byte      `cbor:"key_material,omitempty"`
	SigningKey  []byte      `cbor:"signing_key,omitempty"`
	Entropy     []byte      `cbor:"entropy,omitempty"`
	Algorithm   int         `cbor:"algorithm,omitempty"`
}

// response mirrors request: one shape for every reply, unused fields left
// zero. errorCode/errorMessage are populated instead of output fields when
// the dispatched call failed.
type response struct {
	OK           bool        `cbor:"ok"`
	ErrorCode    int         `cbor:"error_code,omitempty"`
	ErrorMessage string      `cbor:"error_message,omitempty"`
	KeyBlob      []byte      `cbor:"key_blob,omitempty"`
	Params       []wireParam `cbor:"params,omitempty"`
	CertChain    [][]byte    `cbor:"cert_chain,omitempty"`
	Handle       uint64      `cbor:"handle,omitempty"`
	Output       []byte      `cbor:"output,omitempty"`
	InputConsumed int        `cbor:"input_consumed,omitempty"`
	Results      []int       `cbor:"results,omitempty"`
}

func errorResponse(kmErr *keymint.Error) response {
	return response{OK: false, ErrorCode: int(kmErr.Code), ErrorMessage: kmErr.Error()}
}

// readFrame reads one big-endian uint32 length prefix followed by that many
// CBOR-encoded bytes, and decodes it into v.
func readFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 16<<20 {
		return fmt.Errorf("cli: frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return cbor.Unmarshal(buf, v)
}

// writeFrame encodes v as CBOR and writes it prefixed with its big-endian
// uint32 length.
func writeFrame(w io.Writer, v interface{}) error {
	buf, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
