/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
)

const abbreviatedDIDCommMessaging = "dm"

// encodedService is the abbreviated service form: type→t, serviceEndpoint→s, routingKeys→r, accept→a.
type encodedService struct {
	ID          string      `json:"id,omitempty" mapstructure:"id"`
	Type        interface{} `json:"t" mapstructure:"t"`
	Endpoint    interface{} `json:"s" mapstructure:"s"`
	RoutingKeys []string    `json:"r,omitempty" mapstructure:"r"`
	Accept      []string    `json:"a,omitempty" mapstructure:"a"`
}

type encodedEndpoint struct {
	URI         string   `json:"uri" mapstructure:"uri"`
	Accept      []string `json:"a,omitempty" mapstructure:"a"`
	RoutingKeys []string `json:"r,omitempty" mapstructure:"r"`
}

func abbreviateType(t string) string {
	if t == did.DIDCommMessagingServiceType {
		return abbreviatedDIDCommMessaging
	}

	return t
}

func expandType(t string) string {
	if t == abbreviatedDIDCommMessaging {
		return did.DIDCommMessagingServiceType
	}

	return t
}

func encodeService(s *did.Service) (string, error) {
	if len(s.Type) == 0 || len(s.ServiceEndpoint) == 0 {
		return "", fmt.Errorf("%w: service needs a type and an endpoint", ErrInvalidServiceEncoding)
	}

	es := encodedService{ID: s.ID}

	if len(s.Type) == 1 {
		es.Type = abbreviateType(s.Type[0])
	} else {
		types := make([]string, 0, len(s.Type))
		for _, t := range s.Type {
			types = append(types, abbreviateType(t))
		}

		es.Type = types
	}

	endpoints := make([]encodedEndpoint, 0, len(s.ServiceEndpoint))
	for _, ep := range s.ServiceEndpoint {
		endpoints = append(endpoints, encodedEndpoint(ep))
	}

	if len(endpoints) == 1 {
		es.Endpoint = endpoints[0]
	} else {
		es.Endpoint = endpoints
	}

	b, err := json.Marshal(es)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidServiceEncoding, err.Error())
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decodeService decodes a service block. The endpoint may be a URI string with top level r/a members,
// an endpoint object or a list of either.
func decodeService(encoded string) (*did.Service, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidServiceEncoding, err.Error())
	}

	var raw map[string]interface{}

	if err = json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidServiceEncoding, err.Error())
	}

	var es encodedService

	if err = mapstructure.Decode(raw, &es); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidServiceEncoding, err.Error())
	}

	s := &did.Service{ID: es.ID}

	switch t := es.Type.(type) {
	case string:
		s.Type = []string{expandType(t)}
	case []interface{}:
		for _, v := range t {
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: service type must be a string", ErrInvalidServiceEncoding)
			}

			s.Type = append(s.Type, expandType(str))
		}
	}

	if len(s.Type) == 0 {
		return nil, fmt.Errorf("%w: missing service type", ErrInvalidServiceEncoding)
	}

	s.ServiceEndpoint, err = decodeEndpoints(es.Endpoint, es.RoutingKeys, es.Accept)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func decodeEndpoints(raw interface{}, routingKeys, accept []string) ([]did.ServiceEndpoint, error) {
	switch ep := raw.(type) {
	case string:
		return []did.ServiceEndpoint{{URI: ep, RoutingKeys: routingKeys, Accept: accept}}, nil
	case map[string]interface{}:
		var decoded encodedEndpoint

		if err := mapstructure.Decode(ep, &decoded); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidServiceEncoding, err.Error())
		}

		if decoded.URI == "" {
			return nil, fmt.Errorf("%w: endpoint without uri", ErrInvalidServiceEncoding)
		}

		return []did.ServiceEndpoint{did.ServiceEndpoint(decoded)}, nil
	case []interface{}:
		var endpoints []did.ServiceEndpoint

		for _, item := range ep {
			decoded, err := decodeEndpoints(item, routingKeys, accept)
			if err != nil {
				return nil, err
			}

			endpoints = append(endpoints, decoded...)
		}

		if len(endpoints) == 0 {
			return nil, fmt.Errorf("%w: empty endpoint list", ErrInvalidServiceEncoding)
		}

		return endpoints, nil
	default:
		return nil, fmt.Errorf("%w: unsupported endpoint %T", ErrInvalidServiceEncoding, raw)
	}
}
