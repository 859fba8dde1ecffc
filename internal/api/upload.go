package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/media"
	"github.com/parley-chat/parley-server/internal/message"
)

// UploadHandler serves media and avatar ingestion. Media uploads are persisted to storage and appended to chat
// history as a media message; the client then announces them over the control channel.
type UploadHandler struct {
	storage        media.StorageProvider
	messages       message.Repository
	maxUploadBytes int64
	maxAvatarBytes int64
	log            zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(
	storage media.StorageProvider,
	messages message.Repository,
	maxUploadBytes, maxAvatarBytes int64,
	logger zerolog.Logger,
) *UploadHandler {
	return &UploadHandler{
		storage:        storage,
		messages:       messages,
		maxUploadBytes: maxUploadBytes,
		maxAvatarBytes: maxAvatarBytes,
		log:            logger,
	}
}

// Media handles POST /api/upload.
func (h *UploadHandler) Media(c fiber.Ctx) error {
	u := CurrentUser(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "missing file field in multipart form")
	}

	if fh.Size > h.maxUploadBytes {
		return httputil.Fail(c, fiber.StatusBadRequest,
			fmt.Sprintf("file size exceeds the maximum of %d MiB", h.maxUploadBytes/(1024*1024)))
	}

	ext, ok := media.AllowedExt(fh.Filename)
	if !ok {
		return httputil.Fail(c, fiber.StatusBadRequest, "this file type is not allowed")
	}

	f, err := fh.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to open uploaded file")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}
	defer func() { _ = f.Close() }()

	key := uuid.New().String() + ext
	if err := h.storage.Put(c.Context(), key, f); err != nil {
		h.log.Error().Err(err).Msg("Failed to write uploaded file")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}

	url := h.storage.URL(key)
	stored, err := h.messages.Add(c.Context(), message.TypeMedia, url, u.UUID)
	if err != nil {
		// Best-effort cleanup of the stored file.
		_ = h.storage.Delete(c.Context(), key)
		h.log.Error().Err(err).Msg("Failed to append media message")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}

	for _, evicted := range stored.EvictedKeys {
		evictedKey := media.KeyFromURL(evicted)
		if evictedKey == "" {
			continue
		}
		if err := h.storage.Delete(c.Context(), evictedKey); err != nil {
			h.log.Warn().Err(err).Str("key", evictedKey).Msg("Failed to delete evicted media file")
		}
	}

	return httputil.OK(c, fiber.Map{"url": url})
}

// Avatar handles POST /api/upload_avatar. The image is normalised to a 256x256 JPEG and stored under a per-user
// filename, so a re-upload replaces the previous avatar.
func (h *UploadHandler) Avatar(c fiber.Ctx) error {
	u := CurrentUser(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "missing file field in multipart form")
	}

	if fh.Size > h.maxAvatarBytes {
		return httputil.Fail(c, fiber.StatusBadRequest,
			fmt.Sprintf("file size exceeds the maximum of %d MiB", h.maxAvatarBytes/(1024*1024)))
	}

	ext, ok := media.AllowedExt(fh.Filename)
	if !ok || !media.IsImageExt(ext) {
		return httputil.Fail(c, fiber.StatusBadRequest, "avatar must be an image")
	}

	f, err := fh.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to open uploaded avatar")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, h.maxAvatarBytes+1))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read uploaded avatar")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}
	if int64(len(data)) > h.maxAvatarBytes {
		return httputil.Fail(c, fiber.StatusBadRequest,
			fmt.Sprintf("file size exceeds the maximum of %d MiB", h.maxAvatarBytes/(1024*1024)))
	}

	normalized, err := media.NormalizeAvatar(data)
	if err != nil {
		if errors.Is(err, media.ErrInvalidImage) {
			return httputil.Fail(c, fiber.StatusBadRequest, "file is not a decodable image")
		}
		h.log.Error().Err(err).Msg("Failed to normalise avatar")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}

	key := "avatars/" + u.UUID.String() + ".jpg"
	if err := h.storage.Put(c.Context(), key, bytes.NewReader(normalized)); err != nil {
		h.log.Error().Err(err).Msg("Failed to write avatar")
		return httputil.Fail(c, fiber.StatusInternalServerError, "an internal error occurred")
	}

	return httputil.OK(c, fiber.Map{"url": h.storage.URL(key)})
}
