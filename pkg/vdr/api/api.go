/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package api holds the DID method (VDR) interfaces and their shared errors.
package api

import (
	"context"
	"errors"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
)

var (
	// ErrNotFound is returned when a DID resolver does not find the DID.
	ErrNotFound = errors.New("DID does not exist")
	// ErrDIDMethodNotSupported is returned when no registered VDR accepts a DID method.
	ErrDIDMethodNotSupported = errors.New("DID method not supported")
)

// Registry resolves DIDs of any registered method.
type Registry interface {
	Resolve(ctx context.Context, did string) (*did.Doc, error)
}

// VDR verifiable data registry interface.
type VDR interface {
	Accept(method string) bool
	Read(ctx context.Context, did string) (*did.Doc, error)
	Close() error
}

// Creator is implemented by VDRs able to mint new DIDs.
type Creator interface {
	Create(ctx context.Context, opts ...DIDMethodOption) (*did.Doc, error)
}

// DIDMethodOpts did method opts.
type DIDMethodOpts struct {
	Values map[string]interface{}
}

// DIDMethodOption is a did method option.
type DIDMethodOption func(opts *DIDMethodOpts)

// WithOption add option for did method.
func WithOption(name string, value interface{}) DIDMethodOption {
	return func(didMethodOpts *DIDMethodOpts) {
		didMethodOpts.Values[name] = value
	}
}

// ApplyOptions collects opts into DIDMethodOpts.
func ApplyOptions(opts ...DIDMethodOption) *DIDMethodOpts {
	o := &DIDMethodOpts{Values: make(map[string]interface{})}

	for _, opt := range opts {
		opt(o)
	}

	return o
}
