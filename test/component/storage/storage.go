/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storage contains the common tests every storage provider must pass.
package storage

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	spi "github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

// TestAll runs all the common storage provider tests.
func TestAll(t *testing.T, provider spi.Provider) {
	t.Run("Provider: open store", func(t *testing.T) {
		TestProviderOpenStore(t, provider)
	})
	t.Run("Store: put and get", func(t *testing.T) {
		TestPutGet(t, provider)
	})
	t.Run("Store: get tags", func(t *testing.T) {
		TestStoreGetTags(t, provider)
	})
	t.Run("Store: delete", func(t *testing.T) {
		TestStoreDelete(t, provider)
	})
	t.Run("Store: query", func(t *testing.T) {
		TestStoreQuery(t, provider)
	})
	t.Run("Provider: close", func(t *testing.T) {
		TestProviderClose(t, provider)
	})
}

// TestProviderOpenStore tests common Provider OpenStore functionality.
func TestProviderOpenStore(t *testing.T, provider spi.Provider) {
	_, err := provider.OpenStore("")
	require.Error(t, err)

	name := randomStoreName()

	store, err := provider.OpenStore(name)
	require.NoError(t, err)
	require.NoError(t, store.Put("key", []byte("value")))

	sameStore, err := provider.OpenStore(name)
	require.NoError(t, err)

	value, err := sameStore.Get("key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)
}

// TestProviderClose tests common Provider Close functionality.
func TestProviderClose(t *testing.T, provider spi.Provider) {
	_, err := provider.OpenStore(randomStoreName())
	require.NoError(t, err)

	require.NoError(t, provider.Close())
}

// TestPutGet tests common Store Put and Get functionality.
func TestPutGet(t *testing.T, provider spi.Provider) {
	store, err := provider.OpenStore(randomStoreName())
	require.NoError(t, err)

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put("did:peer:2.Ez6L#key-1", []byte(`{"id":"1"}`)))

		value, err := store.Get("did:peer:2.Ez6L#key-1")
		require.NoError(t, err)
		require.Equal(t, []byte(`{"id":"1"}`), value)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put("key", []byte("first")))
		require.NoError(t, store.Put("key", []byte("second")))

		value, err := store.Get("key")
		require.NoError(t, err)
		require.Equal(t, []byte("second"), value)
	})

	t.Run("missing key", func(t *testing.T) {
		value, err := store.Get("missing")
		require.True(t, errors.Is(err, spi.ErrDataNotFound), "got unexpected error %v", err)
		require.Nil(t, value)
	})

	t.Run("invalid input", func(t *testing.T) {
		require.Error(t, store.Put("", []byte("value")))
		require.Error(t, store.Put("key", nil))
		require.Error(t, store.Put("key", []byte("value"), spi.Tag{Name: "a:b"}))
		require.Error(t, store.Put("key", []byte("value"), spi.Tag{Name: "a", Value: "b:c"}))

		_, err := store.Get("")
		require.Error(t, err)
	})
}

// TestStoreGetTags tests common Store GetTags functionality.
func TestStoreGetTags(t *testing.T, provider spi.Provider) {
	store, err := provider.OpenStore(randomStoreName())
	require.NoError(t, err)

	tags := []spi.Tag{{Name: "type", Value: "didpair"}, {Name: "holder"}}

	require.NoError(t, store.Put("key", []byte("value"), tags...))

	gotTags, err := store.GetTags("key")
	require.NoError(t, err)
	require.Equal(t, tags, gotTags)

	_, err = store.GetTags("missing")
	require.True(t, errors.Is(err, spi.ErrDataNotFound), "got unexpected error %v", err)
}

// TestStoreDelete tests common Store Delete functionality.
func TestStoreDelete(t *testing.T, provider spi.Provider) {
	store, err := provider.OpenStore(randomStoreName())
	require.NoError(t, err)

	require.NoError(t, store.Put("key", []byte("value"), spi.Tag{Name: "type", Value: "message"}))
	require.NoError(t, store.Delete("key"))

	_, err = store.Get("key")
	require.True(t, errors.Is(err, spi.ErrDataNotFound), "got unexpected error %v", err)

	iterator, err := store.Query("type")
	require.NoError(t, err)
	verifyIterator(t, iterator, nil, nil)

	require.NoError(t, store.Delete("never-stored"))
	require.Error(t, store.Delete(""))
}

// TestStoreQuery tests common Store Query functionality.
func TestStoreQuery(t *testing.T, provider spi.Provider) {
	store, err := provider.OpenStore(randomStoreName())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(fmt.Sprintf("pair-%d", i), []byte(fmt.Sprintf("value-%d", i)),
			spi.Tag{Name: "type", Value: "didpair"}))
	}

	require.NoError(t, store.Put("mediator", []byte("routing"), spi.Tag{Name: "type", Value: "mediator"}))
	require.NoError(t, store.Put("untagged", []byte("value")))

	t.Run("tag name and value", func(t *testing.T) {
		iterator, err := store.Query("type:didpair")
		require.NoError(t, err)

		verifyIterator(t, iterator, []string{"pair-0", "pair-1", "pair-2"},
			[][]byte{[]byte("value-0"), []byte("value-1"), []byte("value-2")})
	})

	t.Run("tag name only", func(t *testing.T) {
		iterator, err := store.Query("type")
		require.NoError(t, err)

		verifyIterator(t, iterator, []string{"mediator", "pair-0", "pair-1", "pair-2"},
			[][]byte{[]byte("routing"), []byte("value-0"), []byte("value-1"), []byte("value-2")})
	})

	t.Run("retagged entry leaves the old index", func(t *testing.T) {
		require.NoError(t, store.Put("pair-2", []byte("value-2"), spi.Tag{Name: "type", Value: "archived"}))

		iterator, err := store.Query("type:didpair")
		require.NoError(t, err)

		verifyIterator(t, iterator, []string{"pair-0", "pair-1"},
			[][]byte{[]byte("value-0"), []byte("value-1")})
	})

	t.Run("no match", func(t *testing.T) {
		iterator, err := store.Query("other:value")
		require.NoError(t, err)
		verifyIterator(t, iterator, nil, nil)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := store.Query("")
		require.Error(t, err)

		_, err = store.Query("a:b:c")
		require.Error(t, err)
	})
}

func verifyIterator(t *testing.T, iterator spi.Iterator, expectedKeys []string, expectedValues [][]byte) {
	t.Helper()

	defer spi.Close(iterator, nil)

	type kv struct {
		key   string
		value []byte
	}

	var got []kv

	for {
		more, err := iterator.Next()
		require.NoError(t, err)

		if !more {
			break
		}

		key, err := iterator.Key()
		require.NoError(t, err)

		value, err := iterator.Value()
		require.NoError(t, err)

		got = append(got, kv{key: key, value: value})
	}

	sort.Slice(got, func(i, j int) bool { return got[i].key < got[j].key })

	require.Len(t, got, len(expectedKeys))

	for i := range expectedKeys {
		require.Equal(t, expectedKeys[i], got[i].key)
		require.Equal(t, expectedValues[i], got[i].value)
	}
}

func randomStoreName() string {
	return "store-" + uuid.New().String()
}
