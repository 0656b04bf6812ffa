package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"simodapi/internal/model"
	"simodapi/internal/service"
	serviceMocks "simodapi/internal/service/mocks"
	"simodapi/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func discoveryForm(t *testing.T, withConfig bool, callbackURL string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("event_log", "log.csv")
	require.NoError(t, err)
	part.Write([]byte("case,activity\n1,start\n"))

	if withConfig {
		cfg, err := writer.CreateFormFile("configuration", "configuration.yaml")
		require.NoError(t, err)
		cfg.Write([]byte("version: 5\n"))
	}
	if callbackURL != "" {
		writer.WriteField("callback_url", callbackURL)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestCreateDiscovery(t *testing.T) {
	mockSvc := new(serviceMocks.MockDiscoveryService)
	app := fiber.New()
	app.Post("/discoveries", CreateDiscovery(mockSvc))

	t.Run("accepted", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateDiscoveryInput) bool {
			return in.EventLog.Filename == "log.csv" && in.Configuration == nil
		})).Return(&model.Discovery{ID: id, Status: model.StatusAccepted}, nil).Once()

		body, ct := discoveryForm(t, false, "")
		req := httptest.NewRequest(http.MethodPost, "/discoveries", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var res discoveryResponse
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, id, res.RequestID)
		assert.Equal(t, model.StatusAccepted, res.RequestStatus)
		assert.Empty(t, res.ArchiveURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("with configuration and callback", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateDiscoveryInput) bool {
			return in.Configuration != nil &&
				in.Configuration.Filename == "configuration.yaml" &&
				in.CallbackURL == "http://frontend/notify"
		})).Return(&model.Discovery{ID: id, Status: model.StatusAccepted}, nil).Once()

		body, ct := discoveryForm(t, true, "http://frontend/notify")
		req := httptest.NewRequest(http.MethodPost, "/discoveries", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing event log", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/discoveries", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "EVENT_LOG_REQUIRED", res.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.Anything).
			Return(nil, errors.New("workspace error")).Once()

		body, ct := discoveryForm(t, false, "")
		req := httptest.NewRequest(http.MethodPost, "/discoveries", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestListDiscoveries(t *testing.T) {
	mockSvc := new(serviceMocks.MockDiscoveryService)
	app := fiber.New()
	app.Get("/discoveries", ListDiscoveries(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.DiscoveryListResult{
			Items: []model.Discovery{{ID: uuid.New().String(), Status: model.StatusRunning}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, 10, 0).Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DiscoveryListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/discoveries?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 10, 0).Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetDiscovery(t *testing.T) {
	mockSvc := new(serviceMocks.MockDiscoveryService)
	app := fiber.New()
	app.Get("/discoveries/:id", GetDiscovery(mockSvc))

	t.Run("success includes archive url", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).
			Return(&model.Discovery{ID: id, Status: model.StatusSuccess}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result discoveryResponse
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.RequestID)
		assert.Equal(t, model.StatusSuccess, result.RequestStatus)
		assert.Equal(t, "/discoveries/"+id+"/results.tar.gz", result.ArchiveURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("running has no archive url", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).
			Return(&model.Discovery{ID: id, Status: model.StatusRunning}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id, nil)
		resp, _ := app.Test(req)

		var result discoveryResponse
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Empty(t, result.ArchiveURL)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/discoveries/not-a-uuid", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ID", res.Error.Code)
	})
}

func TestDownloadDiscoveryFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockDiscoveryService)
	app := fiber.New()
	app.Get("/discoveries/:id/:filename", DownloadDiscoveryFile(mockSvc))

	t.Run("streams file with attachment headers", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("OpenResult", mock.Anything, id, "model.bpmn").
			Return(io.NopCloser(strings.NewReader("<definitions/>")),
				storage.ObjectInfo{Size: 14, ContentType: "application/xml"}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id+"/model.bpmn", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="model.bpmn"`, resp.Header.Get("Content-Disposition"))

		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "<definitions/>", string(b))
		mockSvc.AssertExpectations(t)
	})

	t.Run("oversized length falls back to unsized stream", func(t *testing.T) {
		id := uuid.New().String()
		// A reported size beyond int would truncate on 32-bit builds; the
		// handler must stream without a length instead.
		mockSvc.On("OpenResult", mock.Anything, id, "results.tar.gz").
			Return(io.NopCloser(strings.NewReader("tarball")),
				storage.ObjectInfo{Size: math.MaxInt64, ContentType: "application/gzip"}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id+"/results.tar.gz", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "tarball", string(b))
	})

	t.Run("results not ready", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("OpenResult", mock.Anything, id, "results.tar.gz").
			Return(nil, storage.ObjectInfo{}, service.ErrResultNotReady).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id+"/results.tar.gz", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "RESULT_NOT_AVAILABLE", res.Error.Code)
	})

	t.Run("unknown discovery", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("OpenResult", mock.Anything, id, "model.bpmn").
			Return(nil, storage.ObjectInfo{}, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id+"/model.bpmn", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("storage miss maps to file not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("OpenResult", mock.Anything, id, "missing.txt").
			Return(nil, storage.ObjectInfo{}, errors.New("object does not exist")).Once()

		req := httptest.NewRequest(http.MethodGet, "/discoveries/"+id+"/missing.txt", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "FILE_NOT_FOUND", res.Error.Code)
	})
}

func TestDeleteDiscovery(t *testing.T) {
	mockSvc := new(serviceMocks.MockDiscoveryService)
	app := fiber.New()
	app.Delete("/discoveries/:id", DeleteDiscovery(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/discoveries/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).Return(service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodDelete, "/discoveries/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/discoveries/bad", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
