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

package keymint

// beginOperation implements C6's Begin, described in COMPONENT DESIGN 4.3.
func (d *Dispatcher) beginOperation(purpose Purpose, blob []byte, params *AuthorizationSet) (handle uint64, outputParams *AuthorizationSet, kmErr *Error) {
	key, kmErr := d.loadKey(blob, params)
	if kmErr != nil {
		return 0, nil, kmErr
	}

	alg, ok := key.Algorithm()
	if !ok {
		return 0, nil, NewError(UnknownError, "key blob is missing TAG_ALGORITHM")
	}

	factory := d.ctx.GetOperationFactory(alg, purpose)
	if factory == nil {
		return 0, nil, NewError(UnsupportedPurpose, "no operation factory for algorithm %s purpose %v", alg, purpose)
	}

	op, kmErr := factory.CreateOperation(key, params)
	if kmErr != nil {
		return 0, nil, kmErr
	}

	entry := &liveOp{
		purpose:    purpose,
		hwEnforced: key.HwEnforced,
	}
	if key.HwEnforced.Contains(TagTrustedConfirmationRequired) {
		entry.confirmBuf = make([]byte, 0, ConfirmationMessageMaxSize+ConfirmationTokenMessageTagSize)
	}

	if policy := d.ctx.EnforcementPolicy(); policy != nil {
		keyID, kmErr := policy.CreateKeyId(blob)
		if kmErr != nil {
			return 0, nil, kmErr
		}
		entry.keyID = keyID
		if kmErr := policy.AuthorizeOperation(purpose, keyID, key.HwEnforced, params, 0, true); kmErr != nil {
			return 0, nil, kmErr
		}
	}

	entry.op = op
	outputParams, kmErr = op.Begin(params)
	if kmErr != nil {
		return 0, nil, kmErr
	}

	handle, kmErr = d.opTable.Add(entry)
	if kmErr != nil {
		return 0, nil, kmErr
	}
	return handle, outputParams, nil
}

// updateOperation implements C6's Update.
func (d *Dispatcher) updateOperation(handle uint64, params *AuthorizationSet, input []byte) (output []byte, inputConsumed int, outputParams *AuthorizationSet, kmErr *Error) {
	entry := d.opTable.Find(handle)
	if entry == nil {
		return nil, 0, nil, NewError(InvalidOperationHandle, "no live operation for handle")
	}

	if entry.confirmBuf != nil {
		if len(entry.confirmBuf)+len(input) > ConfirmationMessageMaxSize+ConfirmationTokenMessageTagSize {
			d.opTable.Delete(handle)
			return nil, 0, nil, NewError(InvalidArgument, "confirmation buffer would exceed max size")
		}
		entry.confirmBuf = append(entry.confirmBuf, input...)
	}

	if policy := d.ctx.EnforcementPolicy(); policy != nil {
		if kmErr := policy.AuthorizeOperation(entry.purpose, entry.keyID, entry.hwEnforced, params, handle, false); kmErr != nil {
			d.opTable.Delete(handle)
			return nil, 0, nil, kmErr
		}
	}

	output, inputConsumed, outputParams, kmErr = entry.op.Update(params, input)
	if kmErr != nil {
		d.opTable.Delete(handle)
		return nil, 0, nil, kmErr
	}
	return output, inputConsumed, outputParams, nil
}

// finishOperation implements C6's Finish, including the order-dependent
// post-finish actions in COMPONENT DESIGN 4.3 step 5.
func (d *Dispatcher) finishOperation(handle uint64, params *AuthorizationSet, input, signature []byte) (output []byte, outputParams *AuthorizationSet, kmErr *Error) {
	entry := d.opTable.Find(handle)
	if entry == nil {
		return nil, nil, NewError(InvalidOperationHandle, "no live operation for handle")
	}
	defer d.opTable.Delete(handle)

	if entry.confirmBuf != nil {
		if len(entry.confirmBuf)+len(input) > ConfirmationMessageMaxSize+ConfirmationTokenMessageTagSize {
			return nil, nil, NewError(InvalidArgument, "confirmation buffer would exceed max size")
		}
		entry.confirmBuf = append(entry.confirmBuf, input...)
	}

	if policy := d.ctx.EnforcementPolicy(); policy != nil {
		if kmErr := policy.AuthorizeOperation(entry.purpose, entry.keyID, entry.hwEnforced, params, handle, false); kmErr != nil {
			return nil, nil, kmErr
		}
	}

	output, outputParams, kmErr = entry.op.Finish(params, input, signature)
	if kmErr != nil {
		return nil, nil, kmErr
	}

	// Post-finish action (a): usage-count-limit deletion, before (b).
	if entry.hwEnforced.Contains(TagUsageCountLimit, uint64(1)) {
		if storage := d.ctx.SecureKeyStorage(); storage != nil {
			if kmErr := storage.DeleteKey(entry.keyID); kmErr != nil {
				return nil, nil, kmErr
			}
		}
	}

	// Post-finish action (b): trusted confirmation verification.
	if entry.confirmBuf != nil {
		tokenVal, ok := params.GetBytes(TagConfirmationToken)
		if !ok {
			return nil, nil, NewError(NoUserConfirmation, "TAG_CONFIRMATION_TOKEN missing")
		}
		if len(tokenVal) != ConfirmationTokenSize {
			return nil, nil, NewError(InvalidArgument, "TAG_CONFIRMATION_TOKEN must be %d bytes, got %d", ConfirmationTokenSize, len(tokenVal))
		}
		var token [ConfirmationTokenSize]byte
		copy(token[:], tokenVal)
		if kmErr := d.ctx.CheckConfirmationToken(entry.confirmBuf, token); kmErr != nil {
			return nil, nil, kmErr
		}
	}

	return output, outputParams, nil
}

// abortOperation implements C6's Abort.
func (d *Dispatcher) abortOperation(handle uint64) *Error {
	entry := d.opTable.Find(handle)
	if entry == nil {
		return NewError(InvalidOperationHandle, "no live operation for handle")
	}
	kmErr := entry.op.Abort()
	d.opTable.Delete(handle)
	return kmErr
}
