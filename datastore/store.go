/*
DESCRIPTION
  store.go defines the Store interface used by all services to access
  the durable entity store, together with the Entity, Query and Cache
  types and the store factory.

LICENSE
  Copyright (C) 2025 the YouTube Live Chat DB System authors.

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package datastore provides keyed entity storage with conditional
// creates, transactional field updates, batched puts and filtered
// queries. Two implementations are provided: CloudStore, backed by the
// Google Cloud Datastore, and MemStore, an in-memory store for
// standalone operation and testing.
//
// Entity kinds are namespaced by a deployment environment, so a store
// constructed with env "dev" keeps Channel entities under the
// "dev-Channel" kind. This keeps multiple deployments apart within one
// project, and mirrors the table naming of earlier deployments of this
// system.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/datastore"
)

// Key is the datastore key type, common to all Store implementations.
type Key = datastore.Key

// MaxBatchPuts is the maximum number of entities accepted by a single
// PutMulti call. Batches are atomic per record, not per batch.
const MaxBatchPuts = 25

// Store errors.
var (
	ErrNoSuchEntity     = errors.New("no such entity")
	ErrEntityExists     = errors.New("entity exists")
	ErrWrongType        = errors.New("wrong entity type")
	ErrInvalidStoreKind = errors.New("invalid store kind")
	ErrInvalidBatchSize = errors.New("batch size exceeds maximum")
	ErrUnregisteredKind = errors.New("unregistered entity kind")
	ErrOperationNotImpl = errors.New("operation not implemented")
)

// Entity defines the common behavior of entities stored in a Store.
type Entity interface {
	Copy(dst Entity) (Entity, error) // Copy copies the entity to dst, or to a new entity when dst is nil.
	GetCache() Cache                 // GetCache returns the entity's cache, or nil for no caching.
}

// Cache defines the (optional) caching interface used by Entity.
type Cache interface {
	Set(key *Key, src Entity) error // Set adds or updates a value in the cache.
	Get(key *Key, dst Entity) error // Get retrieves a value, or returns ErrCacheMiss.
	Delete(key *Key)                // Delete removes a value from the cache.
	Reset()                         // Reset clears the cache.
}

// Query defines the filtering interface returned by Store.NewQuery.
// FilterField restricts results to entities whose field satisfies the
// given operator ("=", "<", ">", "<=" or ">="). Order sorts by the
// named field, with a "-" prefix for descending order. Limit bounds
// the number of results; zero means no limit.
type Query interface {
	FilterField(field, op string, value interface{}) error
	Order(field string)
	Limit(limit int)
}

// Store defines the datastore interface shared by all services.
//
// Create is a conditional (put-if-absent) write: it returns
// ErrEntityExists when the key is already present, which callers treat
// as benign idempotency rather than failure. Update applies fn to the
// stored entity inside a transaction, making single-entity
// read-modify-write safe across processes. PutMulti writes up to
// MaxBatchPuts entities; each record succeeds or fails individually.
type Store interface {
	NameKey(kind, name string) *Key
	NewQuery(kind string, keysOnly bool) Query
	Get(ctx context.Context, key *Key, dst Entity) error
	GetAll(ctx context.Context, q Query, dst interface{}) ([]*Key, error)
	Create(ctx context.Context, key *Key, src Entity) error
	Put(ctx context.Context, key *Key, src Entity) (*Key, error)
	PutMulti(ctx context.Context, keys []*Key, src []Entity) error
	Update(ctx context.Context, key *Key, fn func(Entity), dst Entity) error
	Delete(ctx context.Context, key *Key) error
}

// NewStore returns a new Store. Kind is either "cloud" for the Google
// Cloud Datastore, in which case id is the project ID and url
// optionally locates credentials, or "mem" for an in-memory store, in
// which case id and url are ignored. Env is the deployment environment
// used to namespace entity kinds, e.g., "dev" or "prod".
func NewStore(ctx context.Context, kind, id, url, env string) (Store, error) {
	switch kind {
	case "cloud":
		return newCloudStore(ctx, id, url, env)
	case "mem":
		return NewMemStore(env), nil
	default:
		return nil, ErrInvalidStoreKind
	}
}

// entityFactories maps registered entity kinds to factory functions,
// used by MemStore queries to produce typed results.
var (
	entitiesMu      sync.RWMutex
	entityFactories = map[string]func() Entity{}
)

// RegisterEntity registers the factory for an entity kind. Kind is the
// bare (un-namespaced) kind name.
func RegisterEntity(kind string, factory func() Entity) {
	entitiesMu.Lock()
	defer entitiesMu.Unlock()
	entityFactories[kind] = factory
}

// NewEntity returns a new entity of the given bare kind, or an error
// if the kind has not been registered.
func NewEntity(kind string) (Entity, error) {
	entitiesMu.RLock()
	defer entitiesMu.RUnlock()
	factory, ok := entityFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredKind, kind)
	}
	return factory(), nil
}

// namespacedKind prefixes kind with the environment, matching the
// {env}-{Kind} naming of the store layout.
func namespacedKind(env, kind string) string {
	if env == "" {
		return kind
	}
	return env + "-" + kind
}

// ErrCacheMiss is returned by Cache.Get when a key is not cached.
type ErrCacheMiss struct {
	key Key
}

// Error returns an error string for errors of type ErrCacheMiss.
func (e ErrCacheMiss) Error() string {
	return fmt.Sprintf("cache miss for key: %v", e.key)
}

// EntityCache implements Cache as a map of entity copies indexed by key.
type EntityCache struct {
	data  map[Key]Entity
	mutex sync.RWMutex
}

// NewEntityCache returns a new EntityCache.
func NewEntityCache() *EntityCache {
	return &EntityCache{data: make(map[Key]Entity)}
}

// Set adds or updates a value in the cache.
func (c *EntityCache) Set(key *Key, src Entity) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, err := src.Copy(nil)
	if err != nil {
		return err
	}
	c.data[*key] = v
	return nil
}

// Get retrieves a value from the cache, or returns ErrCacheMiss.
func (c *EntityCache) Get(key *Key, dst Entity) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	v, ok := c.data[*key]
	if !ok {
		return ErrCacheMiss{*key}
	}
	_, err := v.Copy(dst)
	return err
}

// Delete removes a value from the cache.
func (c *EntityCache) Delete(key *Key) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.data, *key)
}

// Reset clears the cache.
func (c *EntityCache) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = map[Key]Entity{}
}

// NoCache reduces boilerplate for entities that do not require caching.
type NoCache struct{}

// GetCache returns nil, indicating no caching.
func (NoCache) GetCache() Cache {
	return nil
}
