/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/crypto/ecdhcrypto"
	arieshttp "github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/crypto"
	spisecret "github.com/hyperledger/aries-edge-agent-go/spi/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

// defFrameworkOpts provides default framework options.
func defFrameworkOpts(a *Agent) error {
	if len(a.outboundTransports) == 0 {
		outbound, err := arieshttp.NewOutbound()
		if err != nil {
			return fmt.Errorf("http outbound transport initialization failed: %w", err)
		}

		a.outboundTransports = append(a.outboundTransports, outbound, ws.NewOutbound())
	}

	if a.storeProvider == nil {
		a.storeProvider = mem.NewProvider()
	}

	return nil
}

func defaultCrypto() crypto.Crypto {
	return ecdhcrypto.New()
}

func secretStore(p storage.Provider) (*secret.Store, error) {
	s, err := secret.NewStore(p)
	if err != nil {
		return nil, fmt.Errorf("secret store initialization failed: %w", err)
	}

	return s, nil
}

// secretResolver consults the agent's own secrets before the external resolvers.
func secretResolver(own *secret.Store, external []spisecret.Resolver) spisecret.Resolver {
	if len(external) == 0 {
		return own
	}

	return secret.NewMultiResolver(append([]spisecret.Resolver{own}, external...)...)
}

func didCommService(endpoint string) did.Service {
	return did.Service{
		Type:            []string{did.DIDCommMessagingServiceType},
		ServiceEndpoint: []did.ServiceEndpoint{{URI: endpoint, Accept: []string{"didcomm/v2"}}},
	}
}
