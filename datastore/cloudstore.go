/*
DESCRIPTION
  cloudstore.go implements Store for the Google Cloud Datastore.

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

package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/datastore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// CloudStore implements Store for the Google Cloud Datastore.
type CloudStore struct {
	client *datastore.Client
	env    string
}

// newCloudStore returns a new CloudStore, using the given URL to
// retrieve credentials and authenticate. To obtain credentials from a
// Google storage bucket, URL takes the form gs://bucket_name/creds. A
// URL without a scheme is interpreted as a file. An empty URL attempts
// authentication with default credentials. If the environment variable
// <ID>_CREDENTIALS is defined it overrides the supplied URL.
func newCloudStore(ctx context.Context, id, url, env string) (*CloudStore, error) {
	s := &CloudStore{env: env}

	ev := strings.ToUpper(id) + "_CREDENTIALS"
	if os.Getenv(ev) != "" {
		url = os.Getenv(ev)
	}

	if url == "" {
		var err error
		s.client, err = datastore.NewClient(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("datastore.NewClient failed: %w", err)
		}
		return s, nil
	}

	creds, err := readCredentials(ctx, url)
	if err != nil {
		return nil, err
	}

	s.client, err = datastore.NewClient(ctx, id, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("datastore.NewClient failed: %w", err)
	}
	return s, nil
}

// readCredentials reads credential bytes from a gs:// bucket object or
// a local file.
func readCredentials(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "gs://") {
		creds, err := os.ReadFile(url)
		if err != nil {
			return nil, fmt.Errorf("cannot read credentials file %s: %w", url, err)
		}
		return creds, nil
	}

	url = url[len("gs://"):]
	sep := strings.IndexByte(url, '/')
	if sep == -1 {
		return nil, fmt.Errorf("invalid gs bucket URL: %s", url)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient failed: %w", err)
	}
	r, err := client.Bucket(url[:sep]).Object(url[sep+1:]).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read gs bucket %s: %w", url, err)
	}
	defer r.Close()
	creds, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read gs bucket %s: %w", url, err)
	}
	return creds, nil
}

// NameKey returns a name key for the given bare kind, namespaced by
// the store's environment.
func (s *CloudStore) NameKey(kind, name string) *Key {
	return datastore.NameKey(namespacedKind(s.env, kind), name, nil)
}

// NewQuery returns a new CloudQuery for the given bare kind.
func (s *CloudStore) NewQuery(kind string, keysOnly bool) Query {
	q := datastore.NewQuery(namespacedKind(s.env, kind))
	if keysOnly {
		q = q.KeysOnly()
	}
	return &CloudQuery{query: q}
}

func (s *CloudStore) Get(ctx context.Context, key *Key, dst Entity) error {
	if cache := dst.GetCache(); cache != nil {
		err := cache.Get(key, dst)
		if err == nil {
			return nil
		}
	}
	err := s.client.Get(ctx, key, dst)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrNoSuchEntity
	}
	return err
}

func (s *CloudStore) GetAll(ctx context.Context, query Query, dst interface{}) ([]*Key, error) {
	q, ok := query.(*CloudQuery)
	if !ok {
		return nil, errors.New("expected *CloudQuery type")
	}
	return s.client.GetAll(ctx, q.query, dst)
}

// Create writes the entity only if the key is absent, returning
// ErrEntityExists otherwise.
func (s *CloudStore) Create(ctx context.Context, key *Key, src Entity) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		err := tx.Get(key, src)
		if err == nil {
			return ErrEntityExists
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(key, src)
		return err
	})
	return err
}

func (s *CloudStore) Put(ctx context.Context, key *Key, src Entity) (*Key, error) {
	key, err := s.client.Put(ctx, key, src)
	if err != nil {
		return key, err
	}
	if cache := src.GetCache(); cache != nil {
		cache.Set(key, src)
	}
	return key, nil
}

// PutMulti writes up to MaxBatchPuts entities in one call. The
// underlying write is atomic per record; some records may be written
// when an error is returned.
func (s *CloudStore) PutMulti(ctx context.Context, keys []*Key, src []Entity) error {
	if len(keys) != len(src) {
		return errors.New("keys and src length mismatch")
	}
	if len(keys) > MaxBatchPuts {
		return ErrInvalidBatchSize
	}
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.PutMulti(ctx, keys, src)
	return err
}

// Update applies fn to the stored entity within a transaction. The
// updated entity is left in dst.
func (s *CloudStore) Update(ctx context.Context, key *Key, fn func(Entity), dst Entity) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		err := tx.Get(key, dst)
		if err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ErrNoSuchEntity
			}
			return err
		}
		fn(dst)
		_, err = tx.Put(key, dst)
		return err
	})
	return err
}

func (s *CloudStore) Delete(ctx context.Context, key *Key) error {
	return s.client.Delete(ctx, key)
}

// CloudQuery implements Query for the Google Cloud Datastore.
type CloudQuery struct {
	query *datastore.Query
}

// FilterField implements Query.FilterField using datastore field filters.
func (q *CloudQuery) FilterField(field, op string, value interface{}) error {
	switch op {
	case "=", "<", ">", "<=", ">=":
		q.query = q.query.FilterField(field, op, value)
		return nil
	default:
		return fmt.Errorf("invalid filter operator: %s", op)
	}
}

// Order implements Query.Order. A "-" prefix orders descending.
func (q *CloudQuery) Order(field string) {
	q.query = q.query.Order(field)
}

// Limit implements Query.Limit.
func (q *CloudQuery) Limit(limit int) {
	q.query = q.query.Limit(limit)
}
