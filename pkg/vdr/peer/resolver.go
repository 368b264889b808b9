/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/util/fingerprint"
)

// VerificationMaterialFormat selects how resolved keys are represented.
type VerificationMaterialFormat int

const (
	// JWK renders keys as JsonWebKey2020 with publicKeyJwk.
	JWK VerificationMaterialFormat = iota
	// Multibase renders keys as Ed25519VerificationKey2020 / X25519KeyAgreementKey2020 with publicKeyMultibase.
	Multibase
)

// Verification method types.
const (
	JSONWebKey2020             = "JsonWebKey2020"
	Ed25519VerificationKey2020 = "Ed25519VerificationKey2020"
	X25519KeyAgreementKey2020  = "X25519KeyAgreementKey2020"
)

type resolveOpts struct {
	format VerificationMaterialFormat
}

// ResolveOption configures Resolve.
type ResolveOption func(opts *resolveOpts)

// WithVerificationMaterialFormat sets the key representation of the resolved document.
func WithVerificationMaterialFormat(format VerificationMaterialFormat) ResolveOption {
	return func(opts *resolveOpts) {
		opts.format = format
	}
}

// Resolve builds the DID document of a numalgo 0 or numalgo 2 peer DID.
func Resolve(peerDID string, opts ...ResolveOption) (*did.Doc, error) {
	o := &resolveOpts{}

	for _, opt := range opts {
		opt(o)
	}

	switch {
	case numalgo0Regex.MatchString(peerDID):
		return resolveNumalgo0(peerDID, o.format)
	case numalgo2Regex.MatchString(peerDID):
		return resolveNumalgo2(peerDID, o.format)
	case strings.HasPrefix(peerDID, peerPrefix+"1"):
		return nil, fmt.Errorf("%w: %w: numalgo 1", ErrInvalidPeerDIDSyntax, ErrUnsupportedNumalgo)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeerDIDSyntax, peerDID)
	}
}

func resolveNumalgo0(peerDID string, format VerificationMaterialFormat) (*did.Doc, error) {
	fp := strings.TrimPrefix(peerDID, peerPrefix+string(numalgo0))

	vm, err := verificationMethod(peerDID, 1, fp, fingerprint.ED25519PubKeyMultiCodec, format)
	if err != nil {
		return nil, err
	}

	ref := []did.Verification{did.NewReferencedVerification(vm)}

	return did.BuildDoc(peerDID,
		did.WithVerificationMethod([]did.VerificationMethod{*vm}),
		did.WithAuthentication(ref),
		did.WithAssertionMethod(ref),
		did.WithCapabilityInvocation(ref),
		did.WithCapabilityDelegation(ref),
	), nil
}

func resolveNumalgo2(peerDID string, format VerificationMaterialFormat) (*did.Doc, error) {
	segments := strings.Split(strings.TrimPrefix(peerDID, peerPrefix+string(numalgo2)+segmentSeparator),
		segmentSeparator)

	doc := did.BuildDoc(peerDID)
	keyIndex := 0

	for _, segment := range segments {
		purpose, value := segment[0], segment[1:]

		if purpose == purposeService {
			s, err := decodeService(value)
			if err != nil {
				return nil, err
			}

			s.ID = serviceID(s.ID, len(doc.Service))
			doc.Service = append(doc.Service, *s)

			continue
		}

		code, err := expectedCodec(purpose)
		if err != nil {
			return nil, err
		}

		keyIndex++

		vm, err := verificationMethod(peerDID, keyIndex, value, code, format)
		if err != nil {
			return nil, err
		}

		doc.VerificationMethod = append(doc.VerificationMethod, *vm)
		ref := did.NewReferencedVerification(vm)

		switch purpose {
		case purposeEncryption:
			doc.KeyAgreement = append(doc.KeyAgreement, ref)
		case purposeVerification:
			doc.Authentication = append(doc.Authentication, ref)
		case purposeAssertion:
			doc.AssertionMethod = append(doc.AssertionMethod, ref)
		case purposeInvocation:
			doc.CapabilityInvocation = append(doc.CapabilityInvocation, ref)
		case purposeDelegation:
			doc.CapabilityDelegation = append(doc.CapabilityDelegation, ref)
		}
	}

	return doc, nil
}

// expectedCodec returns the multicodec a purpose requires; E keys are X25519, all others Ed25519.
func expectedCodec(purpose byte) (uint64, error) {
	switch purpose {
	case purposeEncryption:
		return fingerprint.X25519PubKeyMultiCodec, nil
	case purposeVerification, purposeAssertion, purposeInvocation, purposeDelegation:
		return fingerprint.ED25519PubKeyMultiCodec, nil
	default:
		return 0, fmt.Errorf("%w: unknown purpose %c", ErrInvalidPeerDIDSyntax, purpose)
	}
}

func serviceID(encodedID string, index int) string {
	if encodedID != "" {
		return encodedID
	}

	if index == 0 {
		return "#service"
	}

	return "#service-" + strconv.Itoa(index)
}

func verificationMethod(peerDID string, index int, fp string, want uint64,
	format VerificationMaterialFormat) (*did.VerificationMethod, error) {
	raw, code, err := fingerprint.PubKeyFromFingerprint(fp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeerDIDSyntax, err.Error())
	}

	if code != want {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedMulticodec, code)
	}

	if len(raw) != keySize {
		return nil, fmt.Errorf("%w: key length %d", ErrInvalidPeerDIDSyntax, len(raw))
	}

	vm := &did.VerificationMethod{
		ID:         peerDID + "#key-" + strconv.Itoa(index),
		Controller: peerDID,
	}

	if format == Multibase {
		vm.PublicKeyMultibase = fp
		vm.Type = Ed25519VerificationKey2020

		if code == fingerprint.X25519PubKeyMultiCodec {
			vm.Type = X25519KeyAgreementKey2020
		}

		return vm, nil
	}

	j, err := fingerprint.JWKFromCode(code, raw)
	if err != nil {
		return nil, err
	}

	vm.Type = JSONWebKey2020
	vm.JSONWebKey = j

	return vm, nil
}

// KeysFromDoc extracts the raw agreement and authentication keys of a resolved document, in
// document order.
func KeysFromDoc(doc *did.Doc) (authKeys, agreementKeys []Key, err error) {
	agreement, err := doc.KeyAgreementMethods()
	if err != nil {
		return nil, nil, err
	}

	auth, err := doc.AuthenticationMethods()
	if err != nil {
		return nil, nil, err
	}

	for _, group := range []struct {
		vms  []did.VerificationMethod
		typ  KeyType
		keys *[]Key
	}{
		{vms: agreement, typ: X25519, keys: &agreementKeys},
		{vms: auth, typ: Ed25519, keys: &authKeys},
	} {
		for i := range group.vms {
			j, errJWK := group.vms[i].JWK()
			if errJWK != nil {
				return nil, nil, errJWK
			}

			raw, errRaw := j.PublicKeyBytes()
			if errRaw != nil {
				return nil, nil, errRaw
			}

			*group.keys = append(*group.keys, Key{Type: group.typ, Value: raw})
		}
	}

	return authKeys, agreementKeys, nil
}
