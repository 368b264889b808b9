/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prism

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Usage is the purpose of a prism public key.
type Usage int32

// Key usages, numbered as on the ledger.
const (
	UnknownKey Usage = iota
	MasterKey
	IssuingKey
	KeyAgreementKey
	AuthenticationKey
	RevocationKey
	CapabilityInvocationKey
	CapabilityDelegationKey
)

// DefaultID returns the id a key of this usage gets when none is given, e.g. "authentication0".
func (u Usage) DefaultID(index int) string {
	return fmt.Sprintf("%s%d", u.prefix(), index)
}

func (u Usage) prefix() string {
	switch u {
	case MasterKey:
		return "master"
	case IssuingKey:
		return "issuing"
	case KeyAgreementKey:
		return "agreement"
	case AuthenticationKey:
		return "authentication"
	case RevocationKey:
		return "revocation"
	case CapabilityInvocationKey:
		return "invocation"
	case CapabilityDelegationKey:
		return "delegation"
	default:
		return "unknown"
	}
}

// Curve names used in key data.
const (
	Secp256k1 = "secp256k1"
	Ed25519   = "Ed25519"
	X25519    = "X25519"
)

// ECKeyData is an uncompressed EC point.
type ECKeyData struct {
	Curve string
	X     []byte
	Y     []byte
}

// CompressedECKeyData is a compressed EC point, or the raw key for Ed25519 and X25519.
type CompressedECKeyData struct {
	Curve string
	Data  []byte
}

// PublicKey is a key of a create operation. Exactly one of ECKeyData and CompressedECKeyData is set.
type PublicKey struct {
	ID                  string
	Usage               Usage
	ECKeyData           *ECKeyData
	CompressedECKeyData *CompressedECKeyData
}

// Service is a service of a create operation. Type and ServiceEndpoint hold either a plain string or
// a JSON value.
type Service struct {
	ID              string
	Type            string
	ServiceEndpoint string
}

// CreateDID is the DID creation operation.
type CreateDID struct {
	PublicKeys []PublicKey
	Services   []Service
	Context    []string
}

// AtalaOperation is a ledger operation; only DID creation is supported.
type AtalaOperation struct {
	CreateDID *CreateDID
}

// Field numbers of the ledger protobuf layout.
const (
	fieldOperationCreateDID = 1

	fieldCreateDIDData = 1

	fieldDataPublicKeys = 2
	fieldDataServices   = 3
	fieldDataContext    = 4

	fieldKeyID         = 1
	fieldKeyUsage      = 2
	fieldKeyEC         = 8
	fieldKeyCompressed = 9

	fieldECCurve = 1
	fieldECX     = 2
	fieldECY     = 3

	fieldCompressedCurve = 1
	fieldCompressedData  = 2

	fieldServiceID       = 1
	fieldServiceType     = 2
	fieldServiceEndpoint = 3
)

var errNoCreateOperation = errors.New("operation is not a DID creation")

// Marshal encodes the operation in its ledger wire format.
func (op *AtalaOperation) Marshal() ([]byte, error) {
	if op.CreateDID == nil {
		return nil, errNoCreateOperation
	}

	var data []byte

	for i := range op.CreateDID.PublicKeys {
		key, err := marshalPublicKey(&op.CreateDID.PublicKeys[i])
		if err != nil {
			return nil, err
		}

		data = appendMessage(data, fieldDataPublicKeys, key)
	}

	for _, s := range op.CreateDID.Services {
		var svc []byte

		svc = appendString(svc, fieldServiceID, s.ID)
		svc = appendString(svc, fieldServiceType, s.Type)
		svc = appendString(svc, fieldServiceEndpoint, s.ServiceEndpoint)

		data = appendMessage(data, fieldDataServices, svc)
	}

	for _, c := range op.CreateDID.Context {
		data = protowire.AppendTag(data, fieldDataContext, protowire.BytesType)
		data = protowire.AppendString(data, c)
	}

	createDID := appendMessage(nil, fieldCreateDIDData, data)

	return appendMessage(nil, fieldOperationCreateDID, createDID), nil
}

func marshalPublicKey(k *PublicKey) ([]byte, error) {
	var b []byte

	b = appendString(b, fieldKeyID, k.ID)

	if k.Usage != UnknownKey {
		b = protowire.AppendTag(b, fieldKeyUsage, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.Usage))
	}

	switch {
	case k.ECKeyData != nil:
		var ec []byte

		ec = appendString(ec, fieldECCurve, k.ECKeyData.Curve)
		ec = appendBytes(ec, fieldECX, k.ECKeyData.X)
		ec = appendBytes(ec, fieldECY, k.ECKeyData.Y)

		b = appendMessage(b, fieldKeyEC, ec)
	case k.CompressedECKeyData != nil:
		var ec []byte

		ec = appendString(ec, fieldCompressedCurve, k.CompressedECKeyData.Curve)
		ec = appendBytes(ec, fieldCompressedData, k.CompressedECKeyData.Data)

		b = appendMessage(b, fieldKeyCompressed, ec)
	default:
		return nil, fmt.Errorf("public key %q has no key data", k.ID)
	}

	return b, nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, v)
}

// UnmarshalOperation decodes an operation from its ledger wire format. Unknown fields are skipped.
func UnmarshalOperation(b []byte) (*AtalaOperation, error) {
	op := &AtalaOperation{}

	err := walkFields(b, func(num protowire.Number, value []byte) error {
		if num != fieldOperationCreateDID {
			return nil
		}

		return walkFields(value, func(num protowire.Number, value []byte) error {
			if num != fieldCreateDIDData {
				return nil
			}

			create, err := unmarshalCreationData(value)
			if err != nil {
				return err
			}

			op.CreateDID = create

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if op.CreateDID == nil {
		return nil, errNoCreateOperation
	}

	return op, nil
}

func unmarshalCreationData(b []byte) (*CreateDID, error) {
	create := &CreateDID{}

	err := walkFields(b, func(num protowire.Number, value []byte) error {
		switch num {
		case fieldDataPublicKeys:
			k, err := unmarshalPublicKey(value)
			if err != nil {
				return err
			}

			create.PublicKeys = append(create.PublicKeys, *k)
		case fieldDataServices:
			s := Service{}

			err := walkFields(value, func(num protowire.Number, value []byte) error {
				switch num {
				case fieldServiceID:
					s.ID = string(value)
				case fieldServiceType:
					s.Type = string(value)
				case fieldServiceEndpoint:
					s.ServiceEndpoint = string(value)
				}

				return nil
			})
			if err != nil {
				return err
			}

			create.Services = append(create.Services, s)
		case fieldDataContext:
			create.Context = append(create.Context, string(value))
		}

		return nil
	})

	return create, err
}

func unmarshalPublicKey(b []byte) (*PublicKey, error) {
	k := &PublicKey{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}

		b = b[n:]

		if num == fieldKeyUsage && typ == protowire.VarintType {
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}

			k.Usage = Usage(v)
			b = b[m:]

			continue
		}

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}

			b = b[m:]

			continue
		}

		value, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}

		b = b[m:]

		switch num {
		case fieldKeyID:
			k.ID = string(value)
		case fieldKeyEC:
			ec := &ECKeyData{}

			if err := walkFields(value, func(num protowire.Number, value []byte) error {
				switch num {
				case fieldECCurve:
					ec.Curve = string(value)
				case fieldECX:
					ec.X = value
				case fieldECY:
					ec.Y = value
				}

				return nil
			}); err != nil {
				return nil, err
			}

			k.ECKeyData = ec
		case fieldKeyCompressed:
			ec := &CompressedECKeyData{}

			if err := walkFields(value, func(num protowire.Number, value []byte) error {
				switch num {
				case fieldCompressedCurve:
					ec.Curve = string(value)
				case fieldCompressedData:
					ec.Data = value
				}

				return nil
			}); err != nil {
				return nil, err
			}

			k.CompressedECKeyData = ec
		}
	}

	return k, nil
}

// walkFields calls fn for every length-delimited field of a message and skips the others.
func walkFields(b []byte, fn func(num protowire.Number, value []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}

		b = b[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}

			b = b[m:]

			continue
		}

		value, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return protowire.ParseError(m)
		}

		b = b[m:]

		if err := fn(num, value); err != nil {
			return err
		}
	}

	return nil
}
