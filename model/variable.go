/*
DESCRIPTION
  variable.go defines the Variable entity, a name/value pair used for
  small items of persistent system state such as quota accounting.

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

package model

import (
	"context"
	"time"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
)

const typeVariable = "Variable" // Variable datastore type.

// variableCache is a process-wide cache of Variable entities.
// Variables are read far more often than written (the quota limiter
// consults its state on every API call) and each variable is owned by
// a single process, so a local cache stays coherent.
var variableCache = datastore.NewEntityCache()

// Variable is a name/value pair entity for persistent system state.
type Variable struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Updated time.Time `json:"updated"`
}

// Copy copies a Variable to dst, or returns a copy of the Variable
// when dst is nil.
func (v *Variable) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var v2 *Variable
	if dst == nil {
		v2 = new(Variable)
	} else {
		var ok bool
		v2, ok = dst.(*Variable)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*v2 = *v
	return v2, nil
}

// GetCache returns the variable cache.
func (v *Variable) GetCache() datastore.Cache {
	return variableCache
}

// PutVariable creates or updates a variable.
func PutVariable(ctx context.Context, store datastore.Store, name, value string) error {
	v := &Variable{Name: name, Value: value, Updated: time.Now().UTC()}
	key := store.NameKey(typeVariable, name)
	_, err := store.Put(ctx, key, v)
	return err
}

// GetVariable returns the variable with the given name, or
// datastore.ErrNoSuchEntity if it does not exist.
func GetVariable(ctx context.Context, store datastore.Store, name string) (*Variable, error) {
	key := store.NameKey(typeVariable, name)
	v := new(Variable)
	err := store.Get(ctx, key, v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVariable deletes the variable with the given name.
func DeleteVariable(ctx context.Context, store datastore.Store, name string) error {
	key := store.NameKey(typeVariable, name)
	variableCache.Delete(key)
	return store.Delete(ctx, key)
}
