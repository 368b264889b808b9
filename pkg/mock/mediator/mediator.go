/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator provides an in-process DIDComm mediator served over HTTP. It grants mediation, keeps
// the key list of every host, queues forwarded envelopes and answers pickup requests.
package mediator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/crypto/ecdhcrypto"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	mediatorsvc "github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/messagepickup"
	arieshttp "github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/framework/didcreator"
	mockprovider "github.com/hyperledger/aries-edge-agent-go/pkg/mock/provider"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/peer"
)

var logger = log.New("edge-agent/mock/mediator")

// ErrUnknownRecipient is returned for a forward to a DID no host registered.
var ErrUnknownRecipient = errors.New("recipient not in any key list")

type queued struct {
	id       string
	envelope []byte
}

// Mediator is a mediator running on an httptest server.
type Mediator struct {
	// DID is the mediator's peer DID; its service points at URL.
	DID string
	// URL is the HTTP endpoint of the mediator.
	URL string
	// Deny makes the mediator answer mediate-request with mediate-deny.
	Deny bool

	packer *packer.Packer
	server *httptest.Server

	mu     sync.Mutex
	hosts  map[string]string
	queues map[string][]queued
}

type creatorProvider struct {
	secrets *secret.Store
	dids    *agent.Store
}

func (p *creatorProvider) SecretStore() didcreator.SecretStore {
	return p.secrets
}

func (p *creatorProvider) PeerDIDStore() didcreator.PeerDIDStore {
	return p.dids
}

// New starts a mediator. Close stops it.
func New() (*Mediator, error) {
	m := &Mediator{
		hosts:  make(map[string]string),
		queues: make(map[string][]queued),
	}

	handler, err := arieshttp.NewInboundHandler("/", m.HandleEnvelope)
	if err != nil {
		return nil, err
	}

	m.server = httptest.NewServer(handler)
	m.URL = m.server.URL

	storeProvider := mem.NewProvider()

	secrets, err := secret.NewStore(storeProvider)
	if err != nil {
		m.Close()

		return nil, err
	}

	dids, err := agent.New(&mockprovider.Provider{StorageProviderValue: storeProvider})
	if err != nil {
		m.Close()

		return nil, err
	}

	doc, err := didcreator.New(&creatorProvider{secrets: secrets, dids: dids}).Create(context.Background(),
		didcreator.WithService(did.Service{
			Type:            []string{did.DIDCommMessagingServiceType},
			ServiceEndpoint: []did.ServiceEndpoint{{URI: m.URL, Accept: []string{"didcomm/v2"}}},
		}), didcreator.WithAlias("mediator"))
	if err != nil {
		m.Close()

		return nil, fmt.Errorf("create mediator did: %w", err)
	}

	m.DID = doc.ID
	m.packer = packer.New(&mockprovider.Provider{
		VDRegistryValue:     vdr.New(vdr.WithVDR(peer.New())),
		SecretResolverValue: secrets,
		CryptoValue:         ecdhcrypto.New(),
	})

	return m, nil
}

// Close stops the HTTP server.
func (m *Mediator) Close() {
	m.server.Close()
}

// Queued returns how many envelopes wait for hostDID.
func (m *Mediator) Queued(hostDID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queues[hostDID])
}

// HandleEnvelope processes one inbound envelope and returns the packed reply, if any.
func (m *Mediator) HandleEnvelope(ctx context.Context, envelope []byte) ([]byte, error) {
	msg, _, err := m.packer.Unpack(ctx, envelope)
	if err != nil {
		return nil, err
	}

	logger.Debugf("mediator received %s from %s", msg.Type, msg.From)

	var reply *message.Message

	switch msg.Type {
	case mediatorsvc.ForwardMsgType:
		return nil, m.forward(msg)
	case mediatorsvc.MediateRequestMsgType:
		reply, err = m.mediate(msg)
	case mediatorsvc.KeylistUpdateMsgType:
		reply, err = m.updateKeyList(msg)
	case messagepickup.StatusRequestMsgType:
		reply, err = m.status(msg)
	case messagepickup.DeliveryRequestMsgType:
		reply, err = m.deliver(msg)
	case messagepickup.MessagesReceivedMsgType:
		reply, err = m.received(msg)
	default:
		return nil, fmt.Errorf("mediator: unsupported message type %s", msg.Type)
	}

	if err != nil {
		return nil, err
	}

	if msg.ReturnRoute != message.ReturnRouteAll {
		return nil, nil
	}

	packed, err := m.packer.Pack(ctx, reply, message.MediaTypeEncrypted)
	if err != nil {
		return nil, err
	}

	return packed.Packed, nil
}

func (m *Mediator) reply(req *message.Message, msgType string, body interface{}) (*message.Message, error) {
	return message.New(msgType, body,
		message.WithFrom(m.DID), message.WithTo(req.From), message.WithThreadID(req.ThreadID()))
}

func (m *Mediator) mediate(req *message.Message) (*message.Message, error) {
	if m.Deny {
		return m.reply(req, mediatorsvc.MediateDenyMsgType, struct{}{})
	}

	return m.reply(req, mediatorsvc.MediateGrantMsgType, mediatorsvc.Grant{RoutingDID: m.DID})
}

func (m *Mediator) updateKeyList(req *message.Message) (*message.Message, error) {
	var update mediatorsvc.KeylistUpdate

	if err := req.DecodeBody(&update); err != nil {
		return nil, err
	}

	resp := mediatorsvc.KeylistUpdateResponse{}

	m.mu.Lock()

	for _, u := range update.Updates {
		result := mediatorsvc.ResultSuccess

		switch u.Action {
		case mediatorsvc.ActionAdd:
			m.hosts[u.RecipientDID] = req.From
		case mediatorsvc.ActionRemove:
			delete(m.hosts, u.RecipientDID)
		default:
			result = mediatorsvc.ResultClientError
		}

		resp.Updated = append(resp.Updated, mediatorsvc.UpdateResponse{
			RecipientDID: u.RecipientDID,
			Action:       u.Action,
			Result:       result,
		})
	}

	m.mu.Unlock()

	return m.reply(req, mediatorsvc.KeylistUpdateResponseMsgType, resp)
}

func (m *Mediator) forward(msg *message.Message) error {
	var fwd mediatorsvc.Forward

	if err := msg.DecodeBody(&fwd); err != nil {
		return err
	}

	if len(msg.Attachments) != 1 {
		return fmt.Errorf("mediator: forward carries %d attachments", len(msg.Attachments))
	}

	inner, err := msg.Attachments[0].Data.Fetch()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	host, ok := m.hosts[fwd.Next]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, fwd.Next)
	}

	m.queues[host] = append(m.queues[host], queued{id: uuid.New().String(), envelope: inner})

	return nil
}

func (m *Mediator) status(req *message.Message) (*message.Message, error) {
	return m.reply(req, messagepickup.StatusMsgType, messagepickup.Status{MessageCount: m.Queued(req.From)})
}

func (m *Mediator) deliver(req *message.Message) (*message.Message, error) {
	var body messagepickup.DeliveryRequest

	if err := req.DecodeBody(&body); err != nil {
		return nil, err
	}

	m.mu.Lock()

	queue := m.queues[req.From]
	if body.Limit > 0 && len(queue) > body.Limit {
		queue = queue[:body.Limit]
	}

	attachments := make([]message.Attachment, 0, len(queue))

	for _, q := range queue {
		attachments = append(attachments, message.Attachment{
			ID:        q.id,
			MediaType: message.MediaTypeEncrypted,
			Data:      message.AttachmentData{Base64: base64.StdEncoding.EncodeToString(q.envelope)},
		})
	}

	m.mu.Unlock()

	if len(attachments) == 0 {
		return m.reply(req, messagepickup.StatusMsgType, messagepickup.Status{})
	}

	delivery, err := m.reply(req, messagepickup.DeliveryMsgType, struct{}{})
	if err != nil {
		return nil, err
	}

	delivery.Attachments = attachments

	return delivery, nil
}

func (m *Mediator) received(req *message.Message) (*message.Message, error) {
	var body messagepickup.MessagesReceived

	if err := req.DecodeBody(&body); err != nil {
		return nil, err
	}

	ack := make(map[string]bool, len(body.MessageIDList))
	for _, id := range body.MessageIDList {
		ack[id] = true
	}

	m.mu.Lock()

	kept := m.queues[req.From][:0:0]

	for _, q := range m.queues[req.From] {
		if !ack[q.id] {
			kept = append(kept, q)
		}
	}

	m.queues[req.From] = kept

	m.mu.Unlock()

	return m.status(req)
}
