/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package downloader fetches documents referenced by URL or by DID.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
	defaultTimeout  = 30 * time.Second
)

var logger = log.New("edge-agent/downloader")

// ErrUnsupportedReference is returned for references that are neither HTTP(S) URLs nor DIDs.
var ErrUnsupportedReference = errors.New("unsupported reference")

// Option configures the Downloader.
type Option func(d *Downloader)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

// WithRetry sets the number of HTTP attempts and the constant delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(d *Downloader) {
		if attempts > 0 {
			d.attempts = attempts
		}

		if delay >= 0 {
			d.delay = delay
		}
	}
}

// Downloader fetches documents.
type Downloader struct {
	vdr      vdrapi.Registry
	client   *http.Client
	attempts int
	delay    time.Duration
}

// New creates a Downloader resolving DIDs through registry.
func New(registry vdrapi.Registry, opts ...Option) *Downloader {
	d := &Downloader{
		vdr:      registry,
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Fetch returns the body behind an HTTP(S) URL, or the JSON DID document of a DID.
func (d *Downloader) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "did:"):
		doc, err := d.vdr.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ref, err)
		}

		return doc.JSONBytes()
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return d.get(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedReference, ref)
	}
}

func (d *Downloader) get(ctx context.Context, uri string) ([]byte, error) {
	var body []byte

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.delay), uint64(d.attempts-1)), ctx)

	err := backoff.Retry(func() error {
		var err error

		body, err = d.getOnce(ctx, uri)
		if err != nil {
			logger.Debugf("get %s: %v", uri, err)
		}

		return err
	}, b)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}

	return body, nil
}

func (d *Downloader) getOnce(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("HTTP create get request failed: %w", err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP Get request failed: %w", err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Warnf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(vdrapi.ErrNotFound)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return nil, backoff.Permanent(fmt.Errorf("unsupported response [%d] body [%s]", resp.StatusCode, body))
	default:
		return nil, fmt.Errorf("unsupported response [%d] body [%s]", resp.StatusCode, body)
	}
}
