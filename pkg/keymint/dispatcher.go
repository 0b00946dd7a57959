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

// Package keymint implements the request-dispatching key management core:
// version negotiation, the operation lifecycle engine, key lifecycle
// dispatch, and remote key provisioning (RKP) assembly, driven entirely
// through the Context capability set (see context.go) supplied at
// construction.
package keymint

import (
	"sync"
	"time"

	"github.com/jeremyhahn/go-keymint/pkg/logging"
)

// Dispatcher is C9: the public request/response entry point. It owns the
// operation table and the negotiated message version, and defers
// everything else to its Context.
//
// The component design describes a single-threaded cooperative scheduling
// model per instance (CONCURRENCY & RESOURCE MODEL); this Go realization
// still serializes Configure/EarlyBootEnded/DeviceLocked/AddRngEntropy and
// message-version negotiation behind a mutex so one Dispatcher can safely
// be shared by multiple request-handling goroutines, matching the
// teacher's KeychainFacade singleton pattern.
type Dispatcher struct {
	mu             sync.Mutex
	ctx            Context
	opTable        *OperationTable
	messageVersion int
	kmDate         int64
	log            *logging.Logger
	metrics        *Metrics
}

// Config configures a new Dispatcher.
type Config struct {
	Context               Context
	OperationTableCapacity int
	KmDate                int64 // the km_date GetVersion2 reports for this build
	Logger                *logging.Logger
	Metrics               *Metrics // optional; nil disables instrumentation
}

// NewDispatcher constructs a Dispatcher over ctx with the given operation
// table capacity.
func NewDispatcher(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}
	capacity := cfg.OperationTableCapacity
	if capacity <= 0 {
		capacity = 16
	}
	return &Dispatcher{
		ctx:            cfg.Context,
		opTable:        NewOperationTable(capacity),
		messageVersion: 1,
		kmDate:         cfg.KmDate,
		log:            log,
		metrics:        cfg.Metrics,
	}
}

// BeginOperation dispatches to C6's Begin.
func (d *Dispatcher) BeginOperation(purpose Purpose, keyBlob []byte, params *AuthorizationSet) (handle uint64, outputParams *AuthorizationSet, kmErr *Error) {
	d.log.Debugf("BeginOperation purpose=%v", purpose)
	start := time.Now()
	handle, outputParams, kmErr = d.beginOperation(purpose, keyBlob, params)
	d.metrics.observeDispatch("begin", time.Since(start).Seconds(), kmErr)
	d.metrics.setOpTableSize(d.opTable.Len())
	if kmErr != nil {
		d.log.Debugf("BeginOperation failed: %v", kmErr)
	}
	return
}

// UpdateOperation dispatches to C6's Update.
func (d *Dispatcher) UpdateOperation(handle uint64, params *AuthorizationSet, input []byte) (output []byte, inputConsumed int, outputParams *AuthorizationSet, kmErr *Error) {
	start := time.Now()
	output, inputConsumed, outputParams, kmErr = d.updateOperation(handle, params, input)
	d.metrics.observeDispatch("update", time.Since(start).Seconds(), kmErr)
	return
}

// FinishOperation dispatches to C6's Finish.
func (d *Dispatcher) FinishOperation(handle uint64, params *AuthorizationSet, input, signature []byte) (output []byte, outputParams *AuthorizationSet, kmErr *Error) {
	start := time.Now()
	output, outputParams, kmErr = d.finishOperation(handle, params, input, signature)
	d.metrics.observeDispatch("finish", time.Since(start).Seconds(), kmErr)
	d.metrics.setOpTableSize(d.opTable.Len())
	return
}

// AbortOperation dispatches to C6's Abort.
func (d *Dispatcher) AbortOperation(handle uint64) *Error {
	start := time.Now()
	kmErr := d.abortOperation(handle)
	d.metrics.observeDispatch("abort", time.Since(start).Seconds(), kmErr)
	d.metrics.setOpTableSize(d.opTable.Len())
	return kmErr
}

// AddRngEntropy is a pure pass-through to the context's RNG.
func (d *Dispatcher) AddRngEntropy(data []byte) *Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx.AddRngEntropy(data)
}

// Configure sets (os_version, os_patchlevel) on the context.
func (d *Dispatcher) Configure(osVersion, osPatchlevel uint32) *Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx.SetSystemVersion(osVersion, osPatchlevel)
	return nil
}

// EarlyBootEnded passes through to the enforcement policy, if any.
func (d *Dispatcher) EarlyBootEnded() *Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return NewError(Unimplemented, "no enforcement policy configured")
	}
	policy.EarlyBootEnded()
	return nil
}

// DeviceLocked passes through to the enforcement policy, if any.
func (d *Dispatcher) DeviceLocked(passwordOnly bool) *Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return NewError(Unimplemented, "no enforcement policy configured")
	}
	policy.DeviceLocked(passwordOnly)
	return nil
}

// SupportedAlgorithms lists the algorithms the context's key factories
// implement.
func (d *Dispatcher) SupportedAlgorithms() []Algorithm {
	return d.ctx.GetSupportedAlgorithms()
}

// MessageVersion returns the version negotiated by the last GetVersion2
// call (or the default of 1 if none has occurred).
func (d *Dispatcher) MessageVersion() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messageVersion
}
