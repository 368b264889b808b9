/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prism

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
)

// Verification method types of synthesized documents.
const (
	EcdsaSecp256k1VerificationKey2019 = "EcdsaSecp256k1VerificationKey2019"
	JSONWebKey2020                    = "JsonWebKey2020"
)

// Document synthesizes the DID document of docID from its creation operation.
func Document(docID string, op *AtalaOperation) (*did.Doc, error) {
	if op == nil || op.CreateDID == nil {
		return nil, errNoCreateOperation
	}

	doc := did.BuildDoc(docID)
	doc.Context = append(doc.Context, op.CreateDID.Context...)

	perUsage := map[Usage]int{}

	for i := range op.CreateDID.PublicKeys {
		k := &op.CreateDID.PublicKeys[i]

		id := k.ID
		if id == "" {
			id = k.Usage.DefaultID(perUsage[k.Usage])
		}

		perUsage[k.Usage]++

		vm, err := verificationMethod(docID, id, k)
		if err != nil {
			return nil, err
		}

		doc.VerificationMethod = append(doc.VerificationMethod, *vm)
		ref := did.NewReferencedVerification(vm)

		switch k.Usage {
		case AuthenticationKey:
			doc.Authentication = append(doc.Authentication, ref)
		case KeyAgreementKey:
			doc.KeyAgreement = append(doc.KeyAgreement, ref)
		case IssuingKey:
			doc.AssertionMethod = append(doc.AssertionMethod, ref)
		case CapabilityInvocationKey:
			doc.CapabilityInvocation = append(doc.CapabilityInvocation, ref)
		case CapabilityDelegationKey:
			doc.CapabilityDelegation = append(doc.CapabilityDelegation, ref)
		case MasterKey, RevocationKey, UnknownKey:
		}
	}

	for _, s := range op.CreateDID.Services {
		svc, err := decodeService(docID, &s)
		if err != nil {
			return nil, err
		}

		doc.Service = append(doc.Service, *svc)
	}

	return doc, nil
}

func verificationMethod(docID, id string, k *PublicKey) (*did.VerificationMethod, error) {
	key, curve, err := publicKey(k)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", id, err)
	}

	j, err := jwk.New(key)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", id, err)
	}

	vmType := JSONWebKey2020
	if curve == Secp256k1 {
		vmType = EcdsaSecp256k1VerificationKey2019
	}

	return &did.VerificationMethod{
		ID:         reference(docID, id),
		Type:       vmType,
		Controller: docID,
		JSONWebKey: j,
	}, nil
}

// publicKey validates the key data; secp256k1 points are checked to lie on the curve.
func publicKey(k *PublicKey) (interface{}, string, error) {
	var (
		curve string
		raw   []byte
	)

	switch {
	case k.CompressedECKeyData != nil:
		curve, raw = k.CompressedECKeyData.Curve, k.CompressedECKeyData.Data
	case k.ECKeyData != nil:
		curve = k.ECKeyData.Curve
		raw = append(append([]byte{0x04}, k.ECKeyData.X...), k.ECKeyData.Y...) //nolint:gomnd
	default:
		return nil, "", fmt.Errorf("no key data")
	}

	switch curve {
	case Secp256k1:
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, "", fmt.Errorf("invalid secp256k1 key: %w", err)
		}

		return pub.ToECDSA(), curve, nil
	case Ed25519:
		if len(raw) != ed25519.PublicKeySize {
			return nil, "", fmt.Errorf("invalid Ed25519 key length %d", len(raw))
		}

		return ed25519.PublicKey(raw), curve, nil
	case X25519:
		pub, err := ecdh.X25519().NewPublicKey(raw)
		if err != nil {
			return nil, "", fmt.Errorf("invalid X25519 key: %w", err)
		}

		return pub, curve, nil
	default:
		return nil, "", fmt.Errorf("unsupported curve %q", curve)
	}
}

func decodeService(docID string, s *Service) (*did.Service, error) {
	out := &did.Service{ID: reference(docID, s.ID)}

	if strings.HasPrefix(s.Type, "[") {
		if err := json.Unmarshal([]byte(s.Type), &out.Type); err != nil {
			return nil, fmt.Errorf("service %s: invalid type: %w", s.ID, err)
		}
	} else {
		out.Type = []string{s.Type}
	}

	endpoint := strings.TrimSpace(s.ServiceEndpoint)

	switch {
	case strings.HasPrefix(endpoint, "{"):
		var ep did.ServiceEndpoint

		if err := json.Unmarshal([]byte(endpoint), &ep); err != nil {
			return nil, fmt.Errorf("service %s: invalid endpoint: %w", s.ID, err)
		}

		out.ServiceEndpoint = []did.ServiceEndpoint{ep}
	case strings.HasPrefix(endpoint, "["):
		var raw []json.RawMessage

		if err := json.Unmarshal([]byte(endpoint), &raw); err != nil {
			return nil, fmt.Errorf("service %s: invalid endpoint: %w", s.ID, err)
		}

		for _, r := range raw {
			var ep did.ServiceEndpoint

			if err := json.Unmarshal(r, &ep.URI); err != nil {
				if err = json.Unmarshal(r, &ep); err != nil {
					return nil, fmt.Errorf("service %s: invalid endpoint: %w", s.ID, err)
				}
			}

			out.ServiceEndpoint = append(out.ServiceEndpoint, ep)
		}
	default:
		out.ServiceEndpoint = []did.ServiceEndpoint{{URI: endpoint}}
	}

	return out, nil
}

func reference(docID, id string) string {
	if strings.HasPrefix(id, did.Scheme+":") {
		return id
	}

	return did.ResolveReference(docID, "#"+strings.TrimPrefix(id, "#"))
}
