/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk/jwksupport"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

const (
	maxLayers        = 3
	mediaTypeUnknown = "unknown"
)

type envelopeStub struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Ciphertext string          `json:"ciphertext"`
	Payload    *string         `json:"payload"`
	Signatures json.RawMessage `json:"signatures"`
}

// MediaType detects the envelope kind of wire from its JSON members.
func MediaType(wire []byte) string {
	var stub envelopeStub

	if err := json.Unmarshal(wire, &stub); err != nil {
		return mediaTypeUnknown
	}

	switch {
	case stub.Ciphertext != "":
		return message.MediaTypeEncrypted
	case stub.Payload != nil && len(stub.Signatures) > 0:
		return message.MediaTypeSigned
	case stub.ID != "" && stub.Type != "":
		return message.MediaTypePlain
	default:
		return mediaTypeUnknown
	}
}

// Unpack decrypts and verifies wire layer by layer down to the plaintext message.
func (p *Packer) Unpack(ctx context.Context, wire []byte) (*message.Message, *UnpackMetadata, error) {
	meta := &UnpackMetadata{Envelope: wire}
	layer, expected := wire, ""

	for i := 0; i < maxLayers; i++ {
		actual := MediaType(layer)
		if expected != "" && expected != actual {
			return nil, nil, &UnpackError{Expected: expected, Actual: actual, Err: errors.New("content type mismatch")}
		}

		var err error

		switch actual {
		case message.MediaTypeEncrypted:
			layer, expected, err = p.decrypt(ctx, layer, meta)
		case message.MediaTypeSigned:
			layer, err = p.verify(ctx, layer, meta)
			expected = message.MediaTypePlain
		case message.MediaTypePlain:
			msg, errPlain := plaintextMessage(layer, meta)
			if errPlain != nil {
				return nil, nil, &UnpackError{Expected: expected, Actual: actual, Err: errPlain}
			}

			return msg, meta, nil
		default:
			err = errors.New("not a DIDComm envelope")
		}

		if err != nil {
			return nil, nil, &UnpackError{Expected: expected, Actual: actual, Err: err}
		}
	}

	return nil, nil, &UnpackError{Actual: MediaType(layer), Err: fmt.Errorf("more than %d envelope layers", maxLayers)}
}

// decrypt opens one JWE layer and returns its payload and content type.
func (p *Packer) decrypt(ctx context.Context, wire []byte, meta *UnpackMetadata) ([]byte, string, error) {
	jwe, err := jose.Deserialize(string(wire))
	if err != nil {
		return nil, "", err
	}

	kids := jwe.RecipientKIDs()

	secrets, err := p.secrets.FindSecrets(ctx, kids)
	if err != nil {
		return nil, "", fmt.Errorf("find recipient secrets: %w", err)
	}

	recKeys := make(map[string]*cryptoapi.PrivateKey, len(secrets))

	for _, s := range secrets {
		if s.JWK == nil {
			continue
		}

		priv, errPriv := jwksupport.PrivateKeyFromJWK(s.JWK, s.ID)
		if errPriv != nil {
			logger.Debugf("skipping recipient secret %s: %v", s.ID, errPriv)

			continue
		}

		recKeys[s.ID] = priv
	}

	if len(recKeys) == 0 {
		return nil, "", fmt.Errorf("%w: no secret for any of %v", ErrNoCompatibleKeyFound, kids)
	}

	var senderKey *cryptoapi.PublicKey

	alg, _ := jwe.ProtectedHeaders.Algorithm()
	skid, hasSKID := jwe.ProtectedHeaders.SenderKeyID()
	authenticated := alg == cryptoapi.ECDH1PUA256KWAlg

	if hasSKID && !authenticated {
		return nil, "", fmt.Errorf("%w: skid %s on a %s envelope", ErrUnauthenticatedSKID, skid, alg)
	}

	if authenticated {
		senderKey, err = p.senderPublicKey(ctx, skid)
		if err != nil {
			return nil, "", err
		}
	}

	payload, err := jose.NewJWEDecrypt(p.crypto, recKeys, senderKey).Decrypt(jwe)
	if err != nil {
		return nil, "", err
	}

	enc, _ := jwe.ProtectedHeaders.Encryption()

	meta.Encrypted = true
	meta.EncryptedToKIDs = kids

	if authenticated {
		meta.Authenticated = true
		meta.EncryptedFromKID = skid
		meta.EncAlgAuth = enc
	} else {
		meta.AnonymousSender = true
		meta.EncAlgAnon = enc
	}

	cty, _ := jwe.ProtectedHeaders.ContentType()
	if cty == "" {
		cty = MediaType(payload)
	}

	return payload, cty, nil
}

func (p *Packer) senderPublicKey(ctx context.Context, skid string) (*cryptoapi.PublicKey, error) {
	doc, err := p.vdr.Resolve(ctx, did.DIDFromReference(skid))
	if err != nil {
		return nil, fmt.Errorf("resolve sender %s: %w", skid, err)
	}

	vm, ok := doc.VerificationMethodByID(skid)
	if !ok {
		return nil, fmt.Errorf("%w: sender key %s", did.ErrVerificationMethodNotFound, skid)
	}

	j, err := vm.JWK()
	if err != nil {
		return nil, err
	}

	return jwksupport.PublicKeyFromJWK(j, skid)
}

// verify checks one JWS layer and returns its payload.
func (p *Packer) verify(ctx context.Context, wire []byte, meta *UnpackMetadata) ([]byte, error) {
	payload, kid, err := jose.VerifyJWS(string(wire), func(kid string) (interface{}, error) {
		doc, errResolve := p.vdr.Resolve(ctx, did.DIDFromReference(kid))
		if errResolve != nil {
			return nil, errResolve
		}

		vm, ok := doc.VerificationMethodByID(kid)
		if !ok {
			return nil, fmt.Errorf("%w: signing key %s", did.ErrVerificationMethodNotFound, kid)
		}

		j, errJWK := vm.JWK()
		if errJWK != nil {
			return nil, errJWK
		}

		return j.Public().Key, nil
	})
	if err != nil {
		return nil, err
	}

	meta.NonRepudiation = true
	meta.SignFrom = kid

	return payload, nil
}

// plaintextMessage parses the innermost layer and checks it against the envelope senders.
func plaintextMessage(layer []byte, meta *UnpackMetadata) (*message.Message, error) {
	msg := &message.Message{}

	if err := json.Unmarshal(layer, msg); err != nil {
		return nil, err
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if meta.Authenticated && did.DIDFromReference(meta.EncryptedFromKID) != did.DIDFromReference(msg.From) {
		return nil, fmt.Errorf("%w: skid %s, from %q", ErrSenderMismatch, meta.EncryptedFromKID, msg.From)
	}

	if meta.NonRepudiation && did.DIDFromReference(meta.SignFrom) != did.DIDFromReference(msg.From) {
		return nil, fmt.Errorf("%w: signer %s, from %q", ErrSenderMismatch, meta.SignFrom, msg.From)
	}

	return msg, nil
}
