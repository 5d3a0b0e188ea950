/*
DESCRIPTION
  Datastore entity registrations.

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

// Package model defines the entities of the live chat collection
// system (channels under watch, the broadcasts discovered on them,
// the per-broadcast collector worker tasks and the chat messages they
// persist), together with typed datastore accessors for each.
//
// All linkage between entities is by key (channel ID, video ID); there
// is no in-memory object graph.
package model

import (
	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
)

// RegisterEntities is a convenience function that registers all of
// the datastore entities in one go.
func RegisterEntities() {
	datastore.RegisterEntity(typeChannel, func() datastore.Entity { return new(Channel) })
	datastore.RegisterEntity(typeBroadcast, func() datastore.Entity { return new(Broadcast) })
	datastore.RegisterEntity(typeWorkerTask, func() datastore.Entity { return new(WorkerTask) })
	datastore.RegisterEntity(typeChatMessage, func() datastore.Entity { return new(ChatMessage) })
	datastore.RegisterEntity(typeVariable, func() datastore.Entity { return new(Variable) })
}
