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

// Version is the fixed {major, minor, subminor} tuple GetVersion returns.
type Version struct {
	Major, Minor, Subminor int
}

// GetVersion always returns the fixed version, per COMPONENT DESIGN 4.7.
func (d *Dispatcher) GetVersion() Version {
	return Version{Major: 2, Minor: 0, Subminor: 0}
}

// Version2Request is GetVersion2's input.
type Version2Request struct {
	MaxMessageVersion int
}

// Version2Response is GetVersion2's output.
type Version2Response struct {
	KmVersion         KmVersion
	KmDate            int64
	MaxMessageVersion int
	Error             *Error
}

// messageVersionFor maps (km_version, km_date) to the server's own maximum
// supported wire message version. This build supports exactly one wire
// message version per KmVersion tier: KeyMint N maps to N+2, and
// pre-KeyMint (Keymaster) contexts map to 1.
func messageVersionFor(kmVersion KmVersion, kmDate int64) int {
	switch {
	case kmVersion >= KeyMint1:
		return int(kmVersion-KeyMint1) + 3
	default:
		return 1
	}
}

// GetVersion2 negotiates the wire message version, per COMPONENT DESIGN 4.7:
// as a side effect it sets d.messageVersion to min(client_max, server_max).
func (d *Dispatcher) GetVersion2(req Version2Request) Version2Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	kmVersion := d.ctx.GetKmVersion()
	kmDate := d.kmDate
	serverMax := messageVersionFor(kmVersion, kmDate)

	negotiated := serverMax
	if req.MaxMessageVersion < negotiated {
		negotiated = req.MaxMessageVersion
	}
	d.messageVersion = negotiated

	return Version2Response{
		KmVersion:         kmVersion,
		KmDate:            kmDate,
		MaxMessageVersion: serverMax,
		Error:             nil,
	}
}

// checkVersionInfo implements COMPONENT DESIGN 4.6. Per DESIGN NOTES'
// preserved open question, only os_patchlevel is checked, never os_version.
func (d *Dispatcher) checkVersionInfo(hw, sw *AuthorizationSet) *Error {
	_, osPatchlevel := d.ctx.GetSystemVersion()

	for _, set := range []*AuthorizationSet{hw, sw} {
		if set == nil {
			continue
		}
		p, ok := set.GetUint64(TagOSPatchlevel)
		if !ok {
			continue
		}
		switch {
		case uint32(p) < osPatchlevel:
			return NewError(KeyRequiresUpgrade, "key patchlevel %d older than context patchlevel %d", p, osPatchlevel)
		case uint32(p) > osPatchlevel:
			return NewError(InvalidKeyBlob, "key patchlevel %d newer than context patchlevel %d", p, osPatchlevel)
		}
	}
	return nil
}

// loadKey implements COMPONENT DESIGN 4.6's LoadKey: ParseKeyBlob then
// CheckVersionInfo.
func (d *Dispatcher) loadKey(blob []byte, params *AuthorizationSet) (*Key, *Error) {
	key, kmErr := d.ctx.ParseKeyBlob(blob, params)
	if kmErr != nil {
		return nil, kmErr
	}
	if kmErr := d.checkVersionInfo(key.HwEnforced, key.SwEnforced); kmErr != nil {
		return nil, kmErr
	}
	return key, nil
}
