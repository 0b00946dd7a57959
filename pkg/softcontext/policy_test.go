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

package softcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
	"github.com/jeremyhahn/go-keymint/pkg/ratelimit"
)

func newTestPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(PolicyConfig{RateLimit: &ratelimit.Config{Enabled: false}})
	require.NoError(t, err)
	return p
}

func TestCreateKeyIdIsStableDigest(t *testing.T) {
	p := newTestPolicy(t)
	blob := []byte("a serialized key blob")
	id1, kmErr := p.CreateKeyId(blob)
	require.Nil(t, kmErr)
	id2, kmErr := p.CreateKeyId(blob)
	require.Nil(t, kmErr)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
}

func TestAuthorizeOperationRejectsExpiredKey(t *testing.T) {
	p := newTestPolicy(t)
	auths := keymint.NewAuthorizationSet(
		keymint.KeyParam{Tag: keymint.TagUsageExpireDatetime, Value: uint64(1)},
	)
	kmErr := p.AuthorizeOperation(keymint.PurposeSign, []byte("key-id"), auths, keymint.NewAuthorizationSet(), 1, true)
	require.NotNil(t, kmErr)
}

func TestAuthorizeOperationEnforcesUsageCountLimit(t *testing.T) {
	p := newTestPolicy(t)
	keyID := []byte("usage-limited-key")
	auths := keymint.NewAuthorizationSet(
		keymint.KeyParam{Tag: keymint.TagUsageCountLimit, Value: uint64(1)},
	)
	kmErr := p.AuthorizeOperation(keymint.PurposeSign, keyID, auths, keymint.NewAuthorizationSet(), 1, true)
	require.Nil(t, kmErr)
	kmErr = p.AuthorizeOperation(keymint.PurposeSign, keyID, auths, keymint.NewAuthorizationSet(), 2, true)
	require.NotNil(t, kmErr)
}

func TestSharedHmacNegotiationRoundTrip(t *testing.T) {
	p := newTestPolicy(t)
	params, kmErr := p.GetHmacSharingParameters()
	require.Nil(t, kmErr)

	mac, kmErr := p.ComputeSharedHmac([][]byte{params})
	require.Nil(t, kmErr)
	assert.NotEmpty(t, mac)

	token, kmErr := p.GenerateTimestampToken()
	require.Nil(t, kmErr)
	require.NotEmpty(t, token)
}

func TestDeviceLockedGatesUnlockedDeviceRequired(t *testing.T) {
	p := newTestPolicy(t)
	auths := keymint.NewAuthorizationSet(
		keymint.KeyParam{Tag: keymint.TagUnlockedDeviceRequired, Value: true},
	)
	kmErr := p.AuthorizeOperation(keymint.PurposeSign, []byte("k"), auths, keymint.NewAuthorizationSet(), 1, true)
	require.Nil(t, kmErr)

	p.DeviceLocked(false)
	kmErr = p.AuthorizeOperation(keymint.PurposeSign, []byte("k"), auths, keymint.NewAuthorizationSet(), 2, true)
	require.NotNil(t, kmErr)
}
