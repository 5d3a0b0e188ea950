/*
DESCRIPTION
  handlers.go implements the REST handlers of the chat API: channel
  registration and listing, broadcast listing, message retrieval and
  worker task visibility.

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

package main

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
	"github.com/ando1912/YoutubeLiveChatDBSystem/youtube"
)

// Message retrieval limits.
const (
	defaultMessageLimit = 100
	maxMessageLimit     = 1000
)

// channelInfoGetter resolves platform metadata for a channel. It is
// optional; without one, registered channels carry only what the
// operator supplied.
type channelInfoGetter interface {
	Info(ctx context.Context, channelID string) (*youtube.ChannelInfo, error)
}

// service holds the API's dependencies.
type service struct {
	store    datastore.Store
	channels channelInfoGetter
	logger   zerolog.Logger
}

// registerRoutes registers the API routes on the app.
func (svc *service) registerRoutes(app *fiber.App) {
	v1 := app.Group("/api/v1")

	v1.Group("/channels").
		Get("/", svc.listChannelsHandler).
		Post("/", svc.createChannelHandler).
		Delete("/:id", svc.deleteChannelHandler)

	v1.Get("/streams", svc.listStreamsHandler)
	v1.Get("/streams/:video_id/comments", svc.listCommentsHandler)
	v1.Get("/tasks/:video_id", svc.getTaskHandler)
}

// listChannelsHandler returns every registered channel, active or not.
func (svc *service) listChannelsHandler(c *fiber.Ctx) error {
	channels, err := model.AllChannels(c.Context(), svc.store)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not list channels")
	}
	if channels == nil {
		channels = []model.Channel{}
	}
	return c.JSON(channels)
}

// createChannelRequest is the body of POST /channels.
type createChannelRequest struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// createChannelHandler registers a channel for watching. When a
// channel client is configured, platform statistics are fetched and
// cached on the new record; a metadata failure does not block
// registration.
func (svc *service) createChannelHandler(c *fiber.Ctx) error {
	var req createChannelRequest
	err := c.BodyParser(&req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if req.ChannelID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "channel_id is required")
	}

	channel := &model.Channel{
		ID:       req.ChannelID,
		Name:     req.ChannelName,
		IsActive: true,
	}

	if svc.channels != nil {
		info, err := svc.channels.Info(c.Context(), req.ChannelID)
		if err != nil {
			svc.logger.Warn().Err(err).Str("channel", req.ChannelID).Msg("could not fetch channel metadata")
		} else {
			if channel.Name == "" {
				channel.Name = info.Name
			}
			channel.Description = info.Description
			channel.SubscriberCount = info.SubscriberCount
			channel.VideoCount = info.VideoCount
			channel.ViewCount = info.ViewCount
			channel.ThumbnailURL = info.ThumbnailURL
			channel.APIRetrievedAt = info.RetrievedAt
		}
	}

	err = model.CreateChannel(c.Context(), svc.store, channel)
	if errors.Is(err, datastore.ErrEntityExists) {
		return fiber.NewError(fiber.StatusConflict, "channel already registered")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not register channel")
	}
	svc.logger.Info().Str("channel", channel.ID).Msg("channel registered")
	return c.Status(fiber.StatusCreated).JSON(channel)
}

// deleteChannelHandler deactivates a channel. The channel record and
// all of its collected data are preserved.
func (svc *service) deleteChannelHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	err := model.DeactivateChannel(c.Context(), svc.store, id)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return fiber.NewError(fiber.StatusNotFound, "no such channel")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not deactivate channel")
	}
	svc.logger.Info().Str("channel", id).Msg("channel deactivated")
	return c.SendStatus(fiber.StatusNoContent)
}

// listStreamsHandler returns broadcasts, most recently published
// first, optionally filtered by channel_id.
func (svc *service) listStreamsHandler(c *fiber.Ctx) error {
	var (
		broadcasts []model.Broadcast
		err        error
	)
	channelID := c.Query("channel_id")
	if channelID != "" {
		broadcasts, err = model.BroadcastsByChannel(c.Context(), svc.store, channelID)
	} else {
		broadcasts, err = model.AllBroadcasts(c.Context(), svc.store)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not list broadcasts")
	}
	if broadcasts == nil {
		broadcasts = []model.Broadcast{}
	}
	return c.JSON(broadcasts)
}

// listCommentsHandler returns the collected messages of one broadcast,
// most recent first. The limit defaults to 100 and is capped at 1000.
func (svc *service) listCommentsHandler(c *fiber.Ctx) error {
	videoID := c.Params("video_id")
	limit := c.QueryInt("limit", defaultMessageLimit)
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	msgs, err := model.RecentMessagesByVideo(c.Context(), svc.store, videoID, limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not list messages")
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return c.JSON(msgs)
}

// getTaskHandler returns the collector worker task of one broadcast.
func (svc *service) getTaskHandler(c *fiber.Ctx) error {
	task, err := model.GetWorkerTask(c.Context(), svc.store, c.Params("video_id"))
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return fiber.NewError(fiber.StatusNotFound, "no worker task for this broadcast")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not get worker task")
	}
	return c.JSON(task)
}

// errorHandler renders fiber errors as JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
