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
	"io"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
	"github.com/jeremyhahn/go-keymint/pkg/logging"
)

// serveLoop reads one framed request at a time from r, dispatches it
// against d, and writes the framed response to w. It returns when r is
// exhausted (EOF) or a framing error occurs; per-request keymint errors are
// reported in the response, not returned here.
func serveLoop(r io.Reader, w io.Writer, d *keymint.Dispatcher, log *logging.Logger) error {
	for {
		var req request
		if err := readFrame(r, &req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		resp := dispatch(d, req)
		if err := writeFrame(w, resp); err != nil {
			return err
		}
		log.Debugf("keymintd: handled op=%s ok=%v", req.Op, resp.OK)
	}
}

func dispatch(d *keymint.Dispatcher, req request) response {
	switch req.Op {
	case "generate_key":
		result, kmErr := d.GenerateKey(fromWireParams(req.Params), req.SigningKey)
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{
			OK:        true,
			KeyBlob:   result.KeyBlob,
			Params:    append(toWireParams(result.HwEnforced), toWireParams(result.SwEnforced)...),
			CertChain: result.CertChain,
		}

	case "import_key":
		result, kmErr := d.ImportKey(fromWireParams(req.Params), keymint.KeyFormat(req.Format), req.KeyMaterial, req.SigningKey)
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{
			OK:        true,
			KeyBlob:   result.KeyBlob,
			Params:    append(toWireParams(result.HwEnforced), toWireParams(result.SwEnforced)...),
			CertChain: result.CertChain,
		}

	case "export_key":
		material, kmErr := d.ExportKey(keymint.KeyFormat(req.Format), req.KeyBlob, fromWireParams(req.Params))
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, Output: material}

	case "attest_key":
		chain, kmErr := d.AttestKey(req.KeyBlob, fromWireParams(req.Params))
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, CertChain: chain}

	case "upgrade_key":
		blob, kmErr := d.UpgradeKey(req.KeyBlob, fromWireParams(req.Params))
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, KeyBlob: blob}

	case "delete_key":
		if kmErr := d.DeleteKey(req.KeyBlob); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "delete_all_keys":
		if kmErr := d.DeleteAllKeys(); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "get_key_characteristics":
		hw, sw, kmErr := d.GetKeyCharacteristics(req.KeyBlob, fromWireParams(req.Params))
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, Params: append(toWireParams(hw), toWireParams(sw)...)}

	case "begin_operation":
		handle, outParams, kmErr := d.BeginOperation(keymint.Purpose(req.Purpose), req.KeyBlob, fromWireParams(req.Params))
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, Handle: handle, Params: toWireParams(outParams)}

	case "update_operation":
		output, consumed, outParams, kmErr := d.UpdateOperation(req.Handle, fromWireParams(req.Params), req.Input)
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, Output: output, InputConsumed: consumed, Params: toWireParams(outParams)}

	case "finish_operation":
		output, outParams, kmErr := d.FinishOperation(req.Handle, fromWireParams(req.Params), req.Input, req.Signature)
		if kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true, Output: output, Params: toWireParams(outParams)}

	case "abort_operation":
		if kmErr := d.AbortOperation(req.Handle); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "add_rng_entropy":
		if kmErr := d.AddRngEntropy(req.Entropy); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "device_locked":
		if kmErr := d.DeviceLocked(req.Format != 0); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "early_boot_ended":
		if kmErr := d.EarlyBootEnded(); kmErr != nil {
			return errorResponse(kmErr)
		}
		return response{OK: true}

	case "supported_block_modes":
		modes := d.SupportedBlockModes(keymint.Algorithm(req.Algorithm))
		results := make([]int, len(modes))
		for i, m := range modes {
			results[i] = int(m)
		}
		return response{OK: true, Results: results}

	case "supported_padding_modes":
		modes := d.SupportedPaddingModes(keymint.Algorithm(req.Algorithm))
		results := make([]int, len(modes))
		for i, m := range modes {
			results[i] = int(m)
		}
		return response{OK: true, Results: results}

	case "supported_digests":
		digests := d.SupportedDigests(keymint.Algorithm(req.Algorithm))
		results := make([]int, len(digests))
		for i, dg := range digests {
			results[i] = int(dg)
		}
		return response{OK: true, Results: results}

	default:
		return errorResponse(keymint.NewError(keymint.Unimplemented, "unknown op %q", req.Op))
	}
}
