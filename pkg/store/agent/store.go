/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent persists the state of an edge agent: its peer DIDs, connections (DID pairs), the mediator
// it is registered with and the messages it has seen.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

const (
	// NameSpace for the agent store.
	NameSpace = "edgeagent"

	didPairKey  = "didpair"
	mediatorKey = "mediator"
	messageKey  = "message"
	peerDIDKey  = "peerdid"

	dataKeyPattern = "%s_%s"
)

var logger = log.New("edge-agent/store/agent")

// ErrDataNotFound is returned when a record is not stored.
var ErrDataNotFound = storage.ErrDataNotFound

// Direction tells whether a stored message was sent or received.
type Direction string

// Message directions.
const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// DIDPair is an established connection between one of our DIDs and a counterparty DID.
type DIDPair struct {
	Holder string `json:"holder"`
	Other  string `json:"other"`
	Name   string `json:"name,omitempty"`
}

// Mediator is a granted mediation: our host DID, the routing DID the mediator gave us and the mediator DID.
type Mediator struct {
	HostDID     string `json:"hostDID"`
	RoutingDID  string `json:"routingDID"`
	MediatorDID string `json:"mediatorDID"`
}

// PeerDID is one of our own DIDs.
type PeerDID struct {
	DID       string    `json:"did"`
	Alias     string    `json:"alias,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageRecord is a stored message.
type MessageRecord struct {
	Message   *message.Message `json:"message"`
	Direction Direction        `json:"direction"`
	StoredAt  time.Time        `json:"storedAt"`
}

type provider interface {
	StorageProvider() storage.Provider
}

// Store persists agent records.
type Store struct {
	store storage.Store
}

// New returns a new agent store.
func New(ctx provider) (*Store, error) {
	store, err := ctx.StorageProvider().OpenStore(NameSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent store: %w", err)
	}

	return &Store{store: store}, nil
}

// StoreDIDPair saves a connection. A pair with the same holder DID is replaced.
func (s *Store) StoreDIDPair(pair DIDPair) error {
	if pair.Holder == "" || pair.Other == "" {
		return errors.New("did pair needs both holder and other DIDs")
	}

	return s.put(didPairKey, pair.Holder, pair, storage.Tag{Name: didPairKey, Value: tagValue(pair.Other)})
}

// DIDPairs returns all connections ordered by holder DID.
func (s *Store) DIDPairs() ([]DIDPair, error) {
	var pairs []DIDPair

	err := s.query(didPairKey, func(b []byte) error {
		var p DIDPair
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}

		pairs = append(pairs, p)

		return nil
	})

	return pairs, err
}

// StoreMediator saves the granted mediation.
func (s *Store) StoreMediator(m Mediator) error {
	if m.MediatorDID == "" || m.HostDID == "" || m.RoutingDID == "" {
		return errors.New("mediator record needs host, routing and mediator DIDs")
	}

	return s.put(mediatorKey, m.MediatorDID, m, storage.Tag{Name: mediatorKey})
}

// Mediator returns the stored mediation, or an error wrapping ErrDataNotFound.
func (s *Store) Mediator() (*Mediator, error) {
	var found *Mediator

	err := s.query(mediatorKey, func(b []byte) error {
		if found != nil {
			return nil
		}

		found = &Mediator{}

		return json.Unmarshal(b, found)
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, fmt.Errorf("mediator: %w", ErrDataNotFound)
	}

	return found, nil
}

// StoreMessage saves msg once per id. It reports whether msg was new.
func (s *Store) StoreMessage(msg *message.Message, dir Direction) (bool, error) {
	if msg == nil || msg.ID == "" {
		return false, errors.New("message id is mandatory")
	}

	seen, err := s.HasMessage(msg.ID)
	if err != nil || seen {
		return false, err
	}

	rec := MessageRecord{Message: msg, Direction: dir, StoredAt: time.Now().UTC()}

	if err = s.put(messageKey, msg.ID, rec, storage.Tag{Name: messageKey, Value: string(dir)}); err != nil {
		return false, err
	}

	return true, nil
}

// Message returns a stored message.
func (s *Store) Message(id string) (*MessageRecord, error) {
	b, err := s.store.Get(dataKey(messageKey, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	rec := &MessageRecord{}

	if err = json.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", id, err)
	}

	return rec, nil
}

// HasMessage reports whether a message id was stored.
func (s *Store) HasMessage(id string) (bool, error) {
	_, err := s.store.Get(dataKey(messageKey, id))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrDataNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up message %s: %w", id, err)
	}
}

// StorePeerDID saves one of our DIDs.
func (s *Store) StorePeerDID(id, alias string) error {
	if id == "" {
		return errors.New("peer DID is mandatory")
	}

	return s.put(peerDIDKey, id, PeerDID{DID: id, Alias: alias, CreatedAt: time.Now().UTC()},
		storage.Tag{Name: peerDIDKey})
}

// HasPeerDID reports whether id is one of our DIDs.
func (s *Store) HasPeerDID(id string) (bool, error) {
	_, err := s.store.Get(dataKey(peerDIDKey, id))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrDataNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up peer DID %s: %w", id, err)
	}
}

// PeerDIDs returns our DIDs ordered by DID.
func (s *Store) PeerDIDs() ([]PeerDID, error) {
	var dids []PeerDID

	err := s.query(peerDIDKey, func(b []byte) error {
		var d PeerDID
		if err := json.Unmarshal(b, &d); err != nil {
			return err
		}

		dids = append(dids, d)

		return nil
	})

	return dids, err
}

func (s *Store) put(kind, id string, v interface{}, tags ...storage.Tag) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	if err = s.store.Put(dataKey(kind, id), b, tags...); err != nil {
		return fmt.Errorf("failed to put %s: %w", kind, err)
	}

	return nil
}

func (s *Store) query(tag string, visit func([]byte) error) error {
	itr, err := s.store.Query(tag)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", tag, err)
	}

	defer storage.Close(itr, logger)

	more, err := itr.Next()
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", tag, err)
	}

	for more {
		value, errValue := itr.Value()
		if errValue != nil {
			return fmt.Errorf("failed to read %s: %w", tag, errValue)
		}

		if err = visit(value); err != nil {
			return fmt.Errorf("failed to parse %s: %w", tag, err)
		}

		more, err = itr.Next()
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", tag, err)
		}
	}

	return nil
}

func dataKey(kind, id string) string {
	return fmt.Sprintf(dataKeyPattern, kind, id)
}

// tagValue strips ':' which tag values cannot carry.
func tagValue(v string) string {
	return strings.ReplaceAll(v, ":", "_")
}
