/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vdr chains DID method resolvers behind one registry.
package vdr

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	diddoc "github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

const (
	// DefaultCacheSize is the resolver cache size used by WithCache when size is not positive.
	DefaultCacheSize = 100
	// DefaultCacheTTL is the resolver cache entry lifetime used by WithCache when ttl is not positive.
	DefaultCacheTTL = 10 * time.Minute
)

// ErrDIDMethodNotSupported is returned when no registered VDR accepts a DID method.
var ErrDIDMethodNotSupported = vdrapi.ErrDIDMethodNotSupported

// Option is a vdr instance option.
type Option func(opts *Registry)

// Registry vdr registry.
type Registry struct {
	vdr    []vdrapi.VDR
	cache  gcache.Cache
	logger *log.Log
}

// New return new instance of vdr.
func New(opts ...Option) *Registry {
	baseVDR := &Registry{logger: log.New("edge-agent/vdr")}

	// Apply options
	for _, opt := range opts {
		opt(baseVDR)
	}

	return baseVDR
}

// WithVDR adds did method implementation for store. VDRs are consulted in registration order.
func WithVDR(method vdrapi.VDR) Option {
	return func(opts *Registry) {
		opts.vdr = append(opts.vdr, method)
	}
}

// WithCache caches resolved documents in an LRU cache of size entries, each kept for ttl.
func WithCache(size int, ttl time.Duration) Option {
	if size <= 0 {
		size = DefaultCacheSize
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return func(opts *Registry) {
		opts.cache = gcache.New(size).LRU().Expiration(ttl).Build()
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Log) Option {
	return func(opts *Registry) {
		opts.logger = l
	}
}

// Resolve did document. The DID syntax is validated first; the first VDR accepting the method reads it.
func (r *Registry) Resolve(ctx context.Context, did string) (*diddoc.Doc, error) {
	parsed, err := diddoc.Parse(did)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if cached, errCache := r.cache.Get(did); errCache == nil {
			if doc, ok := cached.(*diddoc.Doc); ok {
				return doc, nil
			}
		}
	}

	method, err := r.resolveVDR(parsed.Method)
	if err != nil {
		return nil, err
	}

	doc, err := method.Read(ctx, did)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		// concurrent resolutions of the same DID race here; the last writer wins.
		if errCache := r.cache.Set(did, doc); errCache != nil {
			r.logger.Warnf("failed to cache DID document %s: %s", did, errCache)
		}
	}

	return doc, nil
}

// Create mints a new DID with the VDR accepting didMethod.
func (r *Registry) Create(ctx context.Context, didMethod string, opts ...vdrapi.DIDMethodOption) (*diddoc.Doc, error) {
	method, err := r.resolveVDR(didMethod)
	if err != nil {
		return nil, err
	}

	creator, ok := method.(vdrapi.Creator)
	if !ok {
		return nil, fmt.Errorf("%w: did method %s cannot create DIDs", ErrDIDMethodNotSupported, didMethod)
	}

	return creator.Create(ctx, opts...)
}

// Close frees resources being maintained by vdr.
func (r *Registry) Close() error {
	for _, v := range r.vdr {
		if err := v.Close(); err != nil {
			return fmt.Errorf("close vdr: %w", err)
		}
	}

	if r.cache != nil {
		r.cache.Purge()
	}

	return nil
}

func (r *Registry) resolveVDR(method string) (vdrapi.VDR, error) {
	for _, v := range r.vdr {
		if v.Accept(method) {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: did method %s not supported for vdr", ErrDIDMethodNotSupported, method)
}
