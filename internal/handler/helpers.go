package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/utils"
)

var (
	errUploadMissing        = errors.New("file is required")
	errUploadTooLarge       = errors.New("file exceeds maximum allowed size")
	errUploadTypeNotAllowed = errors.New("file type not allowed")
)

func userIDFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// saveUpload copies one multipart part to a temp file so services and the
// CLI can share path-based inputs. The caller must invoke cleanup once the
// file has been consumed.
func saveUpload(c *fiber.Ctx, field string, maxBytes int64, allowed ...string) (path, filename string, cleanup func(), err error) {
	header, err := c.FormFile(field)
	if err != nil {
		return "", "", nil, errUploadMissing
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return "", "", nil, errUploadTooLarge
	}

	handle, err := header.Open()
	if err != nil {
		return "", "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = handle.Close() }()

	limit := maxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, limit+1)); err != nil {
		return "", "", nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(buf.Len()) > limit {
		return "", "", nil, errUploadTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	if len(allowed) > 0 {
		match := false
		for _, candidate := range allowed {
			if mime.Is(candidate) {
				match = true
				break
			}
		}
		if !match {
			return "", "", nil, fmt.Errorf("%w: %s", errUploadTypeNotAllowed, mime.String())
		}
	}

	tmp, err := os.CreateTemp("", "edulens-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", "", nil, fmt.Errorf("store upload: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", nil, fmt.Errorf("store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", nil, fmt.Errorf("store upload: %w", err)
	}

	cleanup = func() { _ = os.Remove(tmp.Name()) }
	return tmp.Name(), header.Filename, cleanup, nil
}

func sendUploadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
}
