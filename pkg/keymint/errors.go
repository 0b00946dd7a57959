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

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode is the closed set of error kinds a dispatcher operation can
// return. Zero value is OK so a zeroed Error never reads as a failure.
type ErrorCode int

const (
	OK ErrorCode = iota
	UnsupportedAlgorithm
	UnsupportedPurpose
	UnsupportedKeyFormat
	Unimplemented
	InvalidKeyBlob
	KeyRequiresUpgrade
	InvalidOperationHandle
	InvalidArgument
	MemoryAllocationFailed
	UnknownError
	EarlyBootEnded
	NoUserConfirmation
	StatusFailed // RKP status bridging, see DESIGN NOTES "RKP status bridging"
)

var codeNames = map[ErrorCode]string{
	OK:                      "OK",
	UnsupportedAlgorithm:    "UNSUPPORTED_ALGORITHM",
	UnsupportedPurpose:      "UNSUPPORTED_PURPOSE",
	UnsupportedKeyFormat:    "UNSUPPORTED_KEY_FORMAT",
	Unimplemented:           "UNIMPLEMENTED",
	InvalidKeyBlob:          "INVALID_KEY_BLOB",
	KeyRequiresUpgrade:      "KEY_REQUIRES_UPGRADE",
	InvalidOperationHandle:  "INVALID_OPERATION_HANDLE",
	InvalidArgument:         "INVALID_ARGUMENT",
	MemoryAllocationFailed:  "MEMORY_ALLOCATION_FAILED",
	UnknownError:            "UNKNOWN_ERROR",
	EarlyBootEnded:          "EARLY_BOOT_ENDED",
	NoUserConfirmation:      "NO_USER_CONFIRMATION",
	StatusFailed:            "STATUS_FAILED",
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error wraps an ErrorCode with an optional human-readable message and
// underlying cause. It is the only error type dispatcher operations return.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError constructs an *Error for the given code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs an *Error for the given code, keeping cause for
// errors.Unwrap/errors.Is chaining.
func WrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("keymint: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("keymint: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, keymint.NewError(code, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// codeToGRPC maps the closed error taxonomy onto gRPC status codes so an
// external transport (explicitly out of scope for the dispatcher itself)
// can surface dispatcher errors without a translation layer of its own.
var codeToGRPC = map[ErrorCode]codes.Code{
	OK:                     codes.OK,
	UnsupportedAlgorithm:   codes.InvalidArgument,
	UnsupportedPurpose:     codes.InvalidArgument,
	UnsupportedKeyFormat:   codes.InvalidArgument,
	Unimplemented:          codes.Unimplemented,
	InvalidKeyBlob:         codes.InvalidArgument,
	KeyRequiresUpgrade:     codes.FailedPrecondition,
	InvalidOperationHandle: codes.NotFound,
	InvalidArgument:        codes.InvalidArgument,
	MemoryAllocationFailed: codes.ResourceExhausted,
	UnknownError:           codes.Unknown,
	EarlyBootEnded:         codes.FailedPrecondition,
	NoUserConfirmation:     codes.PermissionDenied,
	StatusFailed:           codes.Internal,
}

// GRPCStatus implements the interface github.com/grpc/grpc-go/status
// recognizes so callers may pass an *Error directly to status.FromError.
func (e *Error) GRPCStatus() *status.Status {
	code, ok := codeToGRPC[e.Code]
	if !ok {
		code = codes.Unknown
	}
	return status.New(code, e.Error())
}

// AsError converts any error into a *keymint.Error, defaulting to
// UnknownError when err does not already carry a code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if ke, ok := err.(*Error); ok {
		return ke
	}
	return WrapError(UnknownError, err, "unclassified error")
}
