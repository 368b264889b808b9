/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package service builds outbound destinations from the DIDComm services of DID documents.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	diddoc "github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

// maxEndpointHops bounds how many DIDs used as service endpoints are followed.
const maxEndpointHops = 2

// ErrNoDIDCommService is returned when a DID document has no usable DIDCommMessaging service. It is the
// packer's ErrNoValidServiceFound, so callers match one error whichever layer detects the missing service.
var ErrNoDIDCommService = packer.ErrNoValidServiceFound

// Destination provides the recipient DID, routing keys and service endpoint for an outbound message.
type Destination struct {
	RecipientDID    string
	ServiceEndpoint string
	RoutingKeys     []string
	Accept          []string
}

// GetDestination resolves did and builds its Destination. A service endpoint that is itself a DID (a
// mediator) is resolved in turn: that DID becomes the outermost routing key and its own endpoint is used.
func GetDestination(ctx context.Context, did string, vdr vdrapi.Registry) (*Destination, error) {
	doc, err := vdr.Resolve(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("getDestination: failed to resolve did [%s] : %w", did, err)
	}

	dest, err := CreateDestination(doc)
	if err != nil {
		return nil, err
	}

	for hop := 0; strings.HasPrefix(dest.ServiceEndpoint, "did:"); hop++ {
		if hop == maxEndpointHops {
			return nil, fmt.Errorf("getDestination: %w: endpoint of %s nests more than %d DIDs",
				ErrNoDIDCommService, did, maxEndpointHops)
		}

		mediatorDID := dest.ServiceEndpoint

		mediatorDoc, errResolve := vdr.Resolve(ctx, mediatorDID)
		if errResolve != nil {
			return nil, fmt.Errorf("getDestination: failed to resolve endpoint did [%s] : %w", mediatorDID, errResolve)
		}

		next, errCreate := CreateDestination(mediatorDoc)
		if errCreate != nil {
			return nil, errCreate
		}

		dest.ServiceEndpoint = next.ServiceEndpoint
		dest.RoutingKeys = append(append(next.RoutingKeys, mediatorDID), dest.RoutingKeys...)

		if len(dest.Accept) == 0 {
			dest.Accept = next.Accept
		}
	}

	return dest, nil
}

// CreateDestination makes a Destination from the first endpoint of the first DIDCommMessaging service
// of didDoc. Routing keys are listed outermost first.
func CreateDestination(didDoc *diddoc.Doc) (*Destination, error) {
	services := didDoc.DIDCommServices()
	if len(services) == 0 || len(services[0].ServiceEndpoint) == 0 {
		return nil, fmt.Errorf("create destination: %w in diddoc %s", ErrNoDIDCommService, didDoc.ID)
	}

	endpoint := services[0].ServiceEndpoint[0]
	if endpoint.URI == "" {
		return nil, fmt.Errorf("create destination: %w: empty service endpoint in diddoc %s",
			ErrNoDIDCommService, didDoc.ID)
	}

	routingKeys := make([]string, 0, len(endpoint.RoutingKeys))

	for _, key := range endpoint.RoutingKeys {
		routingKeys = append(routingKeys, diddoc.ResolveReference(didDoc.ID, key))
	}

	return &Destination{
		RecipientDID:    didDoc.ID,
		ServiceEndpoint: endpoint.URI,
		RoutingKeys:     routingKeys,
		Accept:          endpoint.Accept,
	}, nil
}
