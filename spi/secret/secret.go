/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package secret defines how the envelope pipeline looks up private keys by key id.
package secret

import (
	"context"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
)

// Secret types.
const (
	TypeJSONWebKey2020 = "JsonWebKey2020"
)

// Secret is private key material identified by a DID URL key id (for example did:peer:2...#key-1).
type Secret struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	JWK  *jwk.JWK `json:"privateKeyJwk"`
}

// Resolver finds secrets by key id.
type Resolver interface {
	// FindSecrets returns the secrets known for kids, in kids order. Unknown kids are skipped, which is not an
	// error.
	FindSecrets(ctx context.Context, kids []string) ([]Secret, error)
}
