/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mem is an in-memory storage provider. Data lives as long as the Provider does.
package mem

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	spi "github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

var (
	errEmptyKey          = errors.New("key cannot be empty")
	errIteratorExhausted = errors.New("iterator is exhausted")
)

// Provider represents an in-memory implementation of the spi.Provider interface.
type Provider struct {
	dbs  map[string]*memStore
	lock sync.RWMutex
}

// NewProvider instantiates a new in-memory storage Provider.
func NewProvider() *Provider {
	return &Provider{dbs: make(map[string]*memStore)}
}

// OpenStore opens a store with the given name and returns a handle.
// If the store has never been opened before, then it is created. Reopening returns the same data.
func (p *Provider) OpenStore(name string) (spi.Store, error) {
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}

	storeName := strings.ToLower(name)

	p.lock.Lock()
	defer p.lock.Unlock()

	store := p.dbs[storeName]
	if store == nil {
		store = &memStore{name: storeName, db: make(map[string]dbEntry)}
		p.dbs[storeName] = store
	}

	return store, nil
}

// Close drops every store of this provider.
func (p *Provider) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.dbs = make(map[string]*memStore)

	return nil
}

type dbEntry struct {
	value []byte
	tags  []spi.Tag
}

type memStore struct {
	name string
	db   map[string]dbEntry
	lock sync.RWMutex
}

// Put stores the key + value pair along with the (optional) tags.
func (m *memStore) Put(key string, value []byte, tags ...spi.Tag) error {
	if key == "" {
		return errEmptyKey
	}

	if value == nil {
		return errors.New("value cannot be nil")
	}

	if err := spi.ValidateTags(tags); err != nil {
		return err
	}

	valueCopy := append([]byte(nil), value...)
	tagsCopy := append([]spi.Tag(nil), tags...)

	m.lock.Lock()
	m.db[key] = dbEntry{value: valueCopy, tags: tagsCopy}
	m.lock.Unlock()

	return nil
}

// Get fetches the value associated with the given key.
func (m *memStore) Get(key string) ([]byte, error) {
	entry, err := m.entry(key)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), entry.value...), nil
}

// GetTags fetches all tags associated with the given key.
func (m *memStore) GetTags(key string) ([]spi.Tag, error) {
	entry, err := m.entry(key)
	if err != nil {
		return nil, err
	}

	return append([]spi.Tag(nil), entry.tags...), nil
}

func (m *memStore) entry(key string) (dbEntry, error) {
	if key == "" {
		return dbEntry{}, errEmptyKey
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	entry, ok := m.db[key]
	if !ok {
		return dbEntry{}, fmt.Errorf("%w: key %q in store %q", spi.ErrDataNotFound, key, m.name)
	}

	return entry, nil
}

// Query returns all data that satisfies the expression, ordered by key.
func (m *memStore) Query(expression string) (spi.Iterator, error) {
	tagName, tagValue, err := spi.ParseQuery(expression)
	if err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	var keys []string

	for key, entry := range m.db {
		for _, tag := range entry.tags {
			if tag.Name == tagName && (tagValue == "" || tag.Value == tagValue) {
				keys = append(keys, key)

				break
			}
		}
	}

	sort.Strings(keys)

	return &memIterator{keys: keys, currentIndex: -1, store: m}, nil
}

// Delete deletes the key + value pair (and all tags) associated with key.
func (m *memStore) Delete(key string) error {
	if key == "" {
		return errEmptyKey
	}

	m.lock.Lock()
	delete(m.db, key)
	m.lock.Unlock()

	return nil
}

// Close is a no-op: data stays available through the Provider.
func (m *memStore) Close() error {
	return nil
}

type memIterator struct {
	keys         []string
	currentIndex int
	store        *memStore
}

func (i *memIterator) Next() (bool, error) {
	if i.currentIndex+1 >= len(i.keys) {
		i.currentIndex = len(i.keys)

		return false, nil
	}

	i.currentIndex++

	return true, nil
}

func (i *memIterator) Key() (string, error) {
	if i.currentIndex < 0 || i.currentIndex >= len(i.keys) {
		return "", errIteratorExhausted
	}

	return i.keys[i.currentIndex], nil
}

func (i *memIterator) Value() ([]byte, error) {
	key, err := i.Key()
	if err != nil {
		return nil, err
	}

	return i.store.Get(key)
}

func (i *memIterator) Tags() ([]spi.Tag, error) {
	key, err := i.Key()
	if err != nil {
		return nil, err
	}

	return i.store.GetTags(key)
}

func (i *memIterator) Close() error {
	return nil
}
