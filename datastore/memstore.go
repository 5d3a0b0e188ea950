/*
DESCRIPTION
  memstore.go implements Store as an in-memory map, for standalone
  operation and testing.

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
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/datastore"
)

// MemStore implements Store as an in-memory map of entity copies. It
// supports the same conditional-create and transactional-update
// semantics as CloudStore, and a reflection-based query engine good
// enough for the filters and orderings this system uses. MemStore is
// safe for concurrent use.
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[string]Entity // kind -> name -> entity
	env  string
}

// NewMemStore returns a new empty MemStore namespaced by env.
func NewMemStore(env string) *MemStore {
	return &MemStore{data: make(map[string]map[string]Entity), env: env}
}

// NameKey returns a name key for the given bare kind, namespaced by
// the store's environment.
func (s *MemStore) NameKey(kind, name string) *Key {
	return datastore.NameKey(namespacedKind(s.env, kind), name, nil)
}

// NewQuery returns a new MemQuery for the given bare kind.
func (s *MemStore) NewQuery(kind string, keysOnly bool) Query {
	return &MemQuery{kind: namespacedKind(s.env, kind), keysOnly: keysOnly}
}

func (s *MemStore) Get(ctx context.Context, key *Key, dst Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key.Kind][key.Name]
	if !ok {
		return ErrNoSuchEntity
	}
	_, err := e.Copy(dst)
	return err
}

func (s *MemStore) Create(ctx context.Context, key *Key, src Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key.Kind][key.Name]; ok {
		return ErrEntityExists
	}
	return s.put(key, src)
}

func (s *MemStore) Put(ctx context.Context, key *Key, src Entity) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return key, s.put(key, src)
}

// put stores a copy of src. Callers must hold the mutex.
func (s *MemStore) put(key *Key, src Entity) error {
	cp, err := src.Copy(nil)
	if err != nil {
		return err
	}
	if s.data[key.Kind] == nil {
		s.data[key.Kind] = make(map[string]Entity)
	}
	s.data[key.Kind][key.Name] = cp
	return nil
}

func (s *MemStore) PutMulti(ctx context.Context, keys []*Key, src []Entity) error {
	if len(keys) != len(src) {
		return errors.New("keys and src length mismatch")
	}
	if len(keys) > MaxBatchPuts {
		return ErrInvalidBatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range keys {
		if err := s.put(k, src[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Update(ctx context.Context, key *Key, fn func(Entity), dst Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key.Kind][key.Name]
	if !ok {
		return ErrNoSuchEntity
	}
	if _, err := e.Copy(dst); err != nil {
		return err
	}
	fn(dst)
	return s.put(key, dst)
}

func (s *MemStore) Delete(ctx context.Context, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key.Kind][key.Name]; !ok {
		return ErrNoSuchEntity
	}
	delete(s.data[key.Kind], key.Name)
	return nil
}

// GetAll runs the query and appends results to dst, which must be a
// pointer to a slice of entity structs or entity pointers. For
// keys-only queries dst may be nil.
func (s *MemStore) GetAll(ctx context.Context, query Query, dst interface{}) ([]*Key, error) {
	q, ok := query.(*MemQuery)
	if !ok {
		return nil, errors.New("expected *MemQuery type")
	}

	s.mu.Lock()
	var matched []memResult
	for name, e := range s.data[q.kind] {
		ok, err := q.matches(e)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if ok {
			matched = append(matched, memResult{name: name, entity: e})
		}
	}
	s.mu.Unlock()

	// Undefined map order must not leak into results.
	sort.Slice(matched, func(i, j int) bool { return matched[i].name < matched[j].name })
	if q.order != "" {
		if err := sortResults(matched, q.order); err != nil {
			return nil, err
		}
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}

	keys := make([]*Key, 0, len(matched))
	for _, m := range matched {
		keys = append(keys, datastore.NameKey(q.kind, m.name, nil))
	}
	if q.keysOnly || dst == nil {
		return keys, nil
	}

	if err := fillSlice(dst, matched); err != nil {
		return nil, err
	}
	return keys, nil
}

type memResult struct {
	name   string
	entity Entity
}

// fillSlice appends entity copies to dst, a *[]T or *[]*T.
func fillSlice(dst interface{}, matched []memResult) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return errors.New("dst must be a pointer to a slice")
	}
	sl := dv.Elem()
	elemType := sl.Type().Elem()
	for _, m := range matched {
		cp, err := m.entity.Copy(nil)
		if err != nil {
			return err
		}
		cv := reflect.ValueOf(cp)
		switch {
		case cv.Type() == elemType:
			sl = reflect.Append(sl, cv)
		case cv.Kind() == reflect.Ptr && cv.Elem().Type() == elemType:
			sl = reflect.Append(sl, cv.Elem())
		default:
			return ErrWrongType
		}
	}
	dv.Elem().Set(sl)
	return nil
}

// sortResults orders matched by the named entity field, descending
// when the field carries a "-" prefix.
func sortResults(matched []memResult, order string) error {
	field := order
	desc := false
	if strings.HasPrefix(field, "-") {
		field = field[1:]
		desc = true
	}
	var sortErr error
	sort.SliceStable(matched, func(i, j int) bool {
		a, errA := fieldValue(matched[i].entity, field)
		b, errB := fieldValue(matched[j].entity, field)
		if errA != nil || errB != nil {
			if sortErr == nil {
				sortErr = fmt.Errorf("cannot order by field %s", field)
			}
			return false
		}
		c, err := compareValues(a, b)
		if err != nil {
			if sortErr == nil {
				sortErr = err
			}
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return sortErr
}

// MemQuery implements Query with an in-memory filter list.
type MemQuery struct {
	kind     string
	keysOnly bool
	filters  []memFilter
	order    string
	limit    int
}

type memFilter struct {
	field string
	op    string
	value interface{}
}

func (q *MemQuery) FilterField(field, op string, value interface{}) error {
	switch op {
	case "=", "<", ">", "<=", ">=":
		q.filters = append(q.filters, memFilter{field, op, value})
		return nil
	default:
		return fmt.Errorf("invalid filter operator: %s", op)
	}
}

func (q *MemQuery) Order(field string) {
	q.order = field
}

func (q *MemQuery) Limit(limit int) {
	q.limit = limit
}

// matches reports whether the entity satisfies every filter.
func (q *MemQuery) matches(e Entity) (bool, error) {
	for _, f := range q.filters {
		v, err := fieldValue(e, f.field)
		if err != nil {
			return false, err
		}
		c, err := compareValues(v, f.value)
		if err != nil {
			return false, err
		}
		var ok bool
		switch f.op {
		case "=":
			ok = c == 0
		case "<":
			ok = c < 0
		case ">":
			ok = c > 0
		case "<=":
			ok = c <= 0
		case ">=":
			ok = c >= 0
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fieldValue returns the named struct field of the entity.
func fieldValue(e Entity, field string) (interface{}, error) {
	v := reflect.ValueOf(e)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity is not a struct: %T", e)
	}
	f := v.FieldByName(field)
	if !f.IsValid() {
		return nil, fmt.Errorf("no such field: %s", field)
	}
	return f.Interface(), nil
}

// compareValues compares two values of like type, returning -1, 0 or 1.
func compareValues(a, b interface{}) (int, error) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, ErrWrongType
		}
		return strings.Compare(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, ErrWrongType
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, ErrWrongType
		}
		return av.Compare(bv), nil
	case int, int32, int64:
		ai := reflect.ValueOf(a).Int()
		bv := reflect.ValueOf(b)
		if !bv.CanInt() {
			return 0, ErrWrongType
		}
		bi := bv.Int()
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		default:
			return 0, nil
		}
	case uint, uint32, uint64:
		ai := reflect.ValueOf(a).Uint()
		bv := reflect.ValueOf(b)
		if !bv.CanUint() {
			return 0, ErrWrongType
		}
		bi := bv.Uint()
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		default:
			return 0, nil
		}
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, ErrWrongType
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		// Named string types (e.g., status enums) compare as strings.
		av2 := reflect.ValueOf(a)
		bv2 := reflect.ValueOf(b)
		if av2.Kind() == reflect.String && bv2.Kind() == reflect.String {
			return strings.Compare(av2.String(), bv2.String()), nil
		}
		return 0, fmt.Errorf("unsupported comparison type: %T", a)
	}
}
