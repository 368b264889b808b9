/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storage defines the persistence interfaces used by the agent stores.
package storage

import (
	"errors"
	standardlog "log"

	spi "github.com/hyperledger/aries-edge-agent-go/spi/log"
)

var (
	// ErrStoreNotFound is returned when a store is not found.
	ErrStoreNotFound = errors.New("store not found")
	// ErrDataNotFound is returned when data is not found.
	ErrDataNotFound = errors.New("data not found")
)

// Tag represents a Name + Value pair that can be associated with a key + value pair for querying later.
// Tag names and values cannot contain any ':' characters.
type Tag struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// Provider represents a storage provider.
type Provider interface {
	// OpenStore opens a Store with the given name and returns it.
	// Store names are not case-sensitive. If name is blank, then an error will be returned.
	OpenStore(name string) (Store, error)

	// Close closes all open Stores in this Provider.
	// For persistent Store implementations, this does not delete any data in the underlying databases.
	Close() error
}

// Store represents a storage database.
type Store interface {
	// Put stores the key + value pair along with the (optional) tags. If the key already exists in the database,
	// then the value and tags will be overwritten silently.
	// If key is empty or value is nil, then an error will be returned.
	Put(key string, value []byte, tags ...Tag) error

	// Get fetches the value associated with the given key.
	// If key cannot be found, then an error wrapping ErrDataNotFound will be returned.
	Get(key string) ([]byte, error)

	// GetTags fetches all tags associated with the given key.
	// If key cannot be found, then an error wrapping ErrDataNotFound will be returned.
	GetTags(key string) ([]Tag, error)

	// Query returns all data that satisfies the expression. Expression format: TagName:TagValue.
	// If TagValue is not provided, then all data associated with the TagName will be returned.
	// Results are ordered by key.
	Query(expression string) (Iterator, error)

	// Delete deletes the key + value pair (and all tags) associated with key.
	// Deleting a missing key is not an error.
	Delete(key string) error

	// Close closes this store object, freeing resources.
	Close() error
}

// Iterator allows for iteration over a collection of entries in a store.
type Iterator interface {
	// Next moves the pointer to the next entry in the iterator.
	// Note that it must be called before accessing the first entry.
	// It returns false if the iterator is exhausted - this is not considered an error.
	Next() (bool, error)

	// Key returns the key of the current entry.
	Key() (string, error)

	// Value returns the value of the current entry.
	Value() ([]byte, error)

	// Tags returns the tags associated with the key of the current entry.
	Tags() ([]Tag, error)

	// Close closes this iterator object, freeing resources.
	Close() error
}

// Close closes iterator and logs any error that occurs.
// If logger is nil, then the standard Go logger will be used.
func Close(iterator Iterator, logger spi.Logger) {
	errClose := iterator.Close()
	if errClose != nil {
		if logger == nil {
			standardlog.Printf("failed to close iterator: %s", errClose.Error())
		} else {
			logger.Errorf("failed to close iterator: %s", errClose.Error())
		}
	}
}

// ParseQuery splits a TagName[:TagValue] expression.
func ParseQuery(expression string) (string, string, error) {
	const (
		nameOnly     = 1
		nameAndValue = 2
	)

	split := splitExpression(expression)

	switch {
	case expression == "" || split[0] == "":
		return "", "", errInvalidQuery(expression)
	case len(split) == nameOnly:
		return split[0], "", nil
	case len(split) == nameAndValue:
		return split[0], split[1], nil
	default:
		return "", "", errInvalidQuery(expression)
	}
}
