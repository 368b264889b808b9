/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package leveldb is a durable storage provider backed by one LevelDB database per store.
// Tags are indexed under dedicated key prefixes so that queries are prefix scans.
package leveldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

const (
	pathPattern = "%s-%s"

	entryPrefix = "e\x00"
	tagPrefix   = "t\x00"
	sep         = "\x00"
)

// Provider is a LevelDB implementation of the storage.Provider interface.
type Provider struct {
	dbPath string
	dbs    map[string]*store
	lock   sync.RWMutex
}

type closer func(storeName string)

type dbEntry struct {
	Value []byte        `json:"value,omitempty"`
	Tags  []storage.Tag `json:"tags,omitempty"`
}

// NewProvider instantiates Provider. Each store lives in the directory "<dbPath>-<store name>".
func NewProvider(dbPath string) *Provider {
	return &Provider{dbs: make(map[string]*store), dbPath: dbPath}
}

// OpenStore opens and returns a store for given name space.
func (p *Provider) OpenStore(name string) (storage.Store, error) {
	if name == "" {
		return nil, errors.New("store name cannot be blank")
	}

	name = strings.ToLower(name)

	p.lock.Lock()
	defer p.lock.Unlock()

	if s, ok := p.dbs[name]; ok {
		return s, nil
	}

	db, err := leveldb.OpenFile(fmt.Sprintf(pathPattern, p.dbPath, name), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store %q: %w", name, err)
	}

	s := &store{db: db, name: name, close: p.removeStore}
	p.dbs[name] = s

	return s, nil
}

// Close closes all stores created under this store provider.
func (p *Provider) Close() error {
	p.lock.RLock()

	openStoresSnapshot := make([]*store, 0, len(p.dbs))
	for _, openStore := range p.dbs {
		openStoresSnapshot = append(openStoresSnapshot, openStore)
	}

	p.lock.RUnlock()

	for _, openStore := range openStoresSnapshot {
		err := openStore.Close()
		if err != nil {
			return fmt.Errorf(`failed to close open store with name "%s": %w`, openStore.name, err)
		}
	}

	return nil
}

func (p *Provider) removeStore(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.dbs, name)
}

type store struct {
	db    *leveldb.DB
	name  string
	close closer
	// lock serializes read-modify-write of an entry and its tag index.
	lock sync.Mutex
}

func entryKey(key string) []byte {
	return []byte(entryPrefix + key)
}

func tagIndexKey(tag storage.Tag, key string) []byte {
	return []byte(tagPrefix + tag.Name + sep + tag.Value + sep + key)
}

// Put stores the key and the record, replacing the tag index entries of a previous value.
func (s *store) Put(key string, value []byte, tags ...storage.Tag) error {
	if key == "" {
		return errors.New("key cannot be blank")
	}

	if value == nil {
		return errors.New("value cannot be nil")
	}

	if err := storage.ValidateTags(tags); err != nil {
		return err
	}

	entryBytes, err := json.Marshal(dbEntry{Value: value, Tags: tags})
	if err != nil {
		return fmt.Errorf("failed to marshal new DB entry: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	batch := new(leveldb.Batch)

	if err = s.deleteIndex(batch, key); err != nil {
		return err
	}

	for _, tag := range tags {
		batch.Put(tagIndexKey(tag, key), nil)
	}

	batch.Put(entryKey(key), entryBytes)

	return s.db.Write(batch, nil)
}

// Get fetches the record based on key.
func (s *store) Get(k string) ([]byte, error) {
	retrievedDBEntry, err := s.getDBEntry(k)
	if err != nil {
		return nil, fmt.Errorf("failed to get DB entry: %w", err)
	}

	return retrievedDBEntry.Value, nil
}

func (s *store) GetTags(key string) ([]storage.Tag, error) {
	retrievedDBEntry, err := s.getDBEntry(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get DB entry: %w", err)
	}

	return retrievedDBEntry.Tags, nil
}

// Query scans the tag index. Keys come back in index order, which is key order within a tag value.
func (s *store) Query(expression string) (storage.Iterator, error) {
	tagName, tagValue, err := storage.ParseQuery(expression)
	if err != nil {
		return nil, err
	}

	prefix := tagPrefix + tagName + sep
	if tagValue != "" {
		prefix += tagValue + sep
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	var keys []string

	for it.Next() {
		indexKey := string(it.Key())
		keys = append(keys, indexKey[strings.LastIndex(indexKey, sep)+1:])
	}

	if err = it.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan tag index: %w", err)
	}

	return &iterator{keys: keys, store: s}, nil
}

// Delete will delete record with k key along with its tag index entries.
func (s *store) Delete(key string) error {
	if key == "" {
		return errors.New("key cannot be blank")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	batch := new(leveldb.Batch)

	if err := s.deleteIndex(batch, key); err != nil {
		return err
	}

	batch.Delete(entryKey(key))

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to delete from underlying database: %w", err)
	}

	return nil
}

func (s *store) Close() error {
	s.close(s.name)

	err := s.db.Close()
	if err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}

	return nil
}

func (s *store) deleteIndex(batch *leveldb.Batch, key string) error {
	old, err := s.getDBEntry(key)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to read previous entry: %w", err)
	}

	for _, tag := range old.Tags {
		batch.Delete(tagIndexKey(tag, key))
	}

	return nil
}

func (s *store) getDBEntry(key string) (dbEntry, error) {
	if key == "" {
		return dbEntry{}, errors.New("key cannot be blank")
	}

	retrievedDBEntryBytes, err := s.db.Get(entryKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return dbEntry{}, fmt.Errorf("%w: key %q in store %q", storage.ErrDataNotFound, key, s.name)
		}

		return dbEntry{}, err
	}

	var retrievedDBEntry dbEntry

	err = json.Unmarshal(retrievedDBEntryBytes, &retrievedDBEntry)
	if err != nil {
		return dbEntry{}, fmt.Errorf("failed to unmarshal retrieved DB entry: %w", err)
	}

	return retrievedDBEntry, nil
}

type iterator struct {
	keys         []string
	currentIndex int
	currentKey   string
	store        *store
}

func (i *iterator) Next() (bool, error) {
	if i.currentIndex >= len(i.keys) {
		return false, nil
	}

	i.currentKey = i.keys[i.currentIndex]
	i.currentIndex++

	return true, nil
}

func (i *iterator) Key() (string, error) {
	return i.currentKey, nil
}

func (i *iterator) Value() ([]byte, error) {
	value, err := i.store.Get(i.currentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get value from store: %w", err)
	}

	return value, nil
}

func (i *iterator) Tags() ([]storage.Tag, error) {
	tags, err := i.store.GetTags(i.currentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags from store: %w", err)
	}

	return tags, nil
}

func (i *iterator) Close() error {
	return nil
}
