package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"simodapi/internal/model"
	"simodapi/internal/service"
)

// discoveryResponse is the wire form of a discovery request's status,
// matching what the companion front-end expects.
type discoveryResponse struct {
	RequestID     string       `json:"request_id"`
	RequestStatus model.Status `json:"request_status"`
	ArchiveURL    string       `json:"archive_url,omitempty"`
}

func toDiscoveryResponse(d *model.Discovery) discoveryResponse {
	res := discoveryResponse{
		RequestID:     d.ID,
		RequestStatus: d.Status,
	}
	if d.Status == model.StatusSuccess {
		res.ArchiveURL = fmt.Sprintf("/discoveries/%s/%s", d.ID, service.ArchiveName)
	}
	return res
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness check.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// CreateDiscovery accepts a multipart upload (event_log required, configuration
// and callback_url optional) and starts a mining run. The run happens in the
// background; the response is 202 with the request's id and accepted status.
func CreateDiscovery(svc service.DiscoveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logFH, err := c.FormFile("event_log")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "EVENT_LOG_REQUIRED", "event_log file is required")
		}
		logFile, err := logFH.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded event log")
		}
		defer logFile.Close()

		in := service.CreateDiscoveryInput{
			EventLog: service.UploadedFile{
				Reader:      logFile,
				Filename:    logFH.Filename,
				ContentType: logFH.Header.Get("Content-Type"),
				Size:        logFH.Size,
			},
			CallbackURL: c.FormValue("callback_url"),
		}

		if cfgFH, err := c.FormFile("configuration"); err == nil {
			cfgFile, err := cfgFH.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded configuration")
			}
			defer cfgFile.Close()
			in.Configuration = &service.UploadedFile{
				Reader:      cfgFile,
				Filename:    cfgFH.Filename,
				ContentType: cfgFH.Header.Get("Content-Type"),
				Size:        cfgFH.Size,
			}
		}

		d, err := svc.Create(c.UserContext(), in)
		if err != nil {
			if errors.Is(err, service.ErrEventLogRequired) {
				return writeError(c, fiber.StatusBadRequest, "EVENT_LOG_REQUIRED", "event_log file is required")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusAccepted).JSON(toDiscoveryResponse(d))
	}
}

// ListDiscoveries returns a limit/offset page of discovery requests.
func ListDiscoveries(svc service.DiscoveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetDiscovery returns the status of one discovery request.
func GetDiscovery(svc service.DiscoveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		d, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "discovery not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(toDiscoveryResponse(d))
	}
}

// DownloadDiscoveryFile streams one result file of a successful run, or the
// whole packed archive when the filename is results.tar.gz.
func DownloadDiscoveryFile(svc service.DiscoveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		filename := c.Params("filename")

		rc, info, err := svc.OpenResult(c.UserContext(), id, filename)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "discovery not found")
			case errors.Is(err, service.ErrResultNotReady):
				return writeError(c, fiber.StatusNotFound, "RESULT_NOT_AVAILABLE", "results not available")
			case errors.Is(err, service.ErrInvalidFilename):
				return writeError(c, fiber.StatusBadRequest, "INVALID_FILENAME", "invalid filename")
			default:
				// Storage lookups for unknown objects surface here as well.
				return writeError(c, fiber.StatusNotFound, "FILE_NOT_FOUND", "file not found")
			}
		}

		ct := info.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		// Size can exceed int on 32-bit builds; fall back to an unsized
		// (chunked) stream instead of truncating the length.
		if info.Size > 0 && info.Size <= math.MaxInt {
			return c.SendStream(rc, int(info.Size))
		}
		return c.SendStream(rc)
	}
}

// DeleteDiscovery removes a discovery request and its stored artifacts.
func DeleteDiscovery(svc service.DiscoveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "discovery not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
