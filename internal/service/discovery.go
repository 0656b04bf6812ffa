package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"simodapi/internal/model"
	"simodapi/internal/repository"
	"simodapi/internal/simod"
	"simodapi/internal/storage"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrNotFound         = errors.New("discovery not found")
	ErrEventLogRequired = errors.New("event log is required")
	ErrInvalidFilename  = errors.New("invalid result filename")
	ErrResultNotReady   = errors.New("result not available")
)

// ArchiveName is the filename under which a run's packed results are exposed.
const ArchiveName = "results.tar.gz"

// UploadedFile carries one multipart upload into the service layer.
type UploadedFile struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// CreateDiscoveryInput is the request to start a mining run.
// Configuration is optional; when present the run uses it instead of one-shot mode.
type CreateDiscoveryInput struct {
	EventLog      UploadedFile
	Configuration *UploadedFile
	CallbackURL   string
}

// DiscoveryListResult is the service-level DTO for paginated discoveries.
type DiscoveryListResult struct {
	Items []model.Discovery `json:"data"`
	Total int               `json:"total"`
}

// MiningRunner is the slice of *simod.Runner the service needs.
type MiningRunner interface {
	PrepareWorkspace(requestID string, eventLog io.Reader, eventLogExt string, configuration io.Reader, configExt string) (*simod.Workspace, error)
	Run(ctx context.Context, ws *simod.Workspace) (simod.RunOutput, error)
}

// DiscoveryService defines the use cases for handling discovery requests.
type DiscoveryService interface {
	// Create stores the uploaded inputs, records an accepted request and starts
	// the mining run in the background. It returns as soon as the row exists.
	Create(ctx context.Context, in CreateDiscoveryInput) (*model.Discovery, error)

	// Get returns a single discovery by its ID.
	Get(ctx context.Context, id string) (*model.Discovery, error)

	// List returns discoveries using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*DiscoveryListResult, error)

	// OpenResult streams one result file of a successful run. filename may be
	// ArchiveName for the packed results.
	OpenResult(ctx context.Context, id, filename string) (io.ReadCloser, storage.ObjectInfo, error)

	// Delete removes a discovery and every stored object belonging to it.
	Delete(ctx context.Context, id string) error

	// Wait blocks until all in-flight background runs have finished.
	Wait()
}

// discoveryService is a concrete implementation of DiscoveryService.
type discoveryService struct {
	runner MiningRunner
	store  storage.Storage
	repo   repository.DiscoveryRepository

	httpClient *http.Client
	wg         sync.WaitGroup
}

// NewDiscoveryService constructs a new DiscoveryService.
func NewDiscoveryService(runner MiningRunner, store storage.Storage, repo repository.DiscoveryRepository) DiscoveryService {
	return &discoveryService{
		runner:     runner,
		store:      store,
		repo:       repo,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func inputKey(id, name string) string {
	return fmt.Sprintf("discoveries/%s/input/%s", id, name)
}

func outputKey(id, name string) string {
	return fmt.Sprintf("discoveries/%s/output/%s", id, filepath.ToSlash(name))
}

func (s *discoveryService) Create(ctx context.Context, in CreateDiscoveryInput) (*model.Discovery, error) {
	if in.EventLog.Reader == nil {
		return nil, ErrEventLogRequired
	}

	id := uuid.New().String()
	logExt := simod.EventLogExt(in.EventLog.ContentType, in.EventLog.Filename)

	var (
		cfgReader io.Reader
		cfgExt    string
	)
	if in.Configuration != nil {
		cfgReader = in.Configuration.Reader
		cfgExt = simod.ConfigExt(in.Configuration.ContentType)
	}

	// The CLI needs the inputs on local disk; write them there first, then
	// mirror them into object storage from the workspace files.
	ws, err := s.runner.PrepareWorkspace(id, in.EventLog.Reader, logExt, cfgReader, cfgExt)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	d := &model.Discovery{
		ID:           id,
		Status:       model.StatusAccepted,
		EventLogPath: inputKey(id, "event_log"+logExt),
		CallbackURL:  in.CallbackURL,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if ws.ConfigurationPath != "" {
		d.ConfigurationPath = inputKey(id, "configuration"+cfgExt)
	}

	if err := s.uploadLocal(ctx, ws.EventLogPath, d.EventLogPath, in.EventLog.ContentType); err != nil {
		return nil, s.rollbackCreate(ctx, ws, id, fmt.Errorf("upload event log: %w", err))
	}
	if ws.ConfigurationPath != "" {
		ct := ""
		if in.Configuration != nil {
			ct = in.Configuration.ContentType
		}
		if err := s.uploadLocal(ctx, ws.ConfigurationPath, d.ConfigurationPath, ct); err != nil {
			return nil, s.rollbackCreate(ctx, ws, id, fmt.Errorf("upload configuration: %w", err))
		}
	}

	stored, err := s.repo.Create(ctx, d)
	if err != nil {
		return nil, s.rollbackCreate(ctx, ws, id, fmt.Errorf("db save failed: %w", err))
	}

	s.wg.Add(1)
	// The caller is still serializing stored into the 202 response; hand the
	// background run its own copy so status transitions never race that read.
	run := *stored
	go s.runDiscovery(&run, ws)

	return stored, nil
}

// rollbackCreate undoes a partially stored request: the local workspace and
// every object already written under the request's storage prefix.
func (s *discoveryService) rollbackCreate(ctx context.Context, ws *simod.Workspace, id string, cause error) error {
	ws.Cleanup()
	if err := s.store.DeletePrefix(ctx, "discoveries/"+id+"/"); err != nil {
		return fmt.Errorf("%v; rollback delete failed: %v", cause, err)
	}
	return cause
}

// uploadLocal streams a workspace file into object storage.
func (s *discoveryService) uploadLocal(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.store.Put(ctx, key, f, storage.PutObjectOptions{
		Size:        st.Size(),
		ContentType: contentType,
	})
	return err
}

// runDiscovery drives one mining run to a terminal state. It runs on its own
// goroutine with a fresh context so request cancellation cannot abort the run.
func (s *discoveryService) runDiscovery(d *model.Discovery, ws *simod.Workspace) {
	defer s.wg.Done()
	defer ws.Cleanup()

	ctx := context.Background()

	s.transition(ctx, d, model.StatusRunning)

	out, runErr := s.runner.Run(ctx, ws)
	logEvent(map[string]any{
		"component":  "discovery",
		"event":      "simod_run_finished",
		"request_id": d.ID,
		"stdout":     out.Stdout,
		"stderr":     out.Stderr,
		"failed":     runErr != nil,
	})

	if runErr != nil {
		d.ErrorMessage = runErr.Error()
		s.transition(ctx, d, model.StatusFailure)
		s.notifyCallback(ctx, d)
		return
	}

	if err := s.publishResults(ctx, d, ws); err != nil {
		logEvent(map[string]any{
			"component":     "discovery",
			"event":         "publish_results_failed",
			"request_id":    d.ID,
			"error_message": err.Error(),
		})
		d.ErrorMessage = fmt.Sprintf("publish results: %v", err)
		s.transition(ctx, d, model.StatusFailure)
		s.notifyCallback(ctx, d)
		return
	}

	s.transition(ctx, d, model.StatusSuccess)
	s.notifyCallback(ctx, d)
}

// publishResults mirrors the run's result files into object storage and packs
// them into the downloadable archive.
func (s *discoveryService) publishResults(ctx context.Context, d *model.Discovery, ws *simod.Workspace) error {
	resultDir, err := ws.ResultDir()
	if err != nil {
		return err
	}

	entries, err := collectFiles(resultDir)
	if err != nil {
		return err
	}
	for _, rel := range entries {
		if err := s.uploadLocal(ctx, filepath.Join(resultDir, rel), outputKey(d.ID, rel), simod.MediaType(rel)); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(simod.WriteArchive(pw, resultDir))
	}()

	archiveKey := outputKey(d.ID, ArchiveName)
	_, err = s.store.Put(ctx, archiveKey, pr, storage.PutObjectOptions{
		Size:        -1,
		ContentType: "application/gzip",
	})
	pr.Close()
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	d.ArchivePath = archiveKey
	return nil
}

func collectFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

// transition persists a status change; a failed write is logged, not fatal —
// the run itself already happened.
func (s *discoveryService) transition(ctx context.Context, d *model.Discovery, st model.Status) {
	d.Status = st
	d.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, d); err != nil {
		logEvent(map[string]any{
			"component":     "discovery",
			"event":         "status_update_failed",
			"request_id":    d.ID,
			"status":        string(st),
			"error_message": err.Error(),
		})
	}
}

// callbackPayload mirrors the discovery status response sent to callers.
type callbackPayload struct {
	RequestID     string       `json:"request_id"`
	RequestStatus model.Status `json:"request_status"`
	ArchiveURL    string       `json:"archive_url,omitempty"`
}

// notifyCallback POSTs the terminal status to the caller-supplied URL, once.
// Delivery failures are logged and never retried.
func (s *discoveryService) notifyCallback(ctx context.Context, d *model.Discovery) {
	if d.CallbackURL == "" {
		return
	}

	payload := callbackPayload{
		RequestID:     d.ID,
		RequestStatus: d.Status,
	}
	if d.Status == model.StatusSuccess {
		payload.ArchiveURL = fmt.Sprintf("/discoveries/%s/%s", d.ID, ArchiveName)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.CallbackURL, strings.NewReader(string(body)))
	if err != nil {
		logEvent(map[string]any{
			"component":     "discovery",
			"event":         "callback_failed",
			"request_id":    d.ID,
			"error_message": err.Error(),
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logEvent(map[string]any{
			"component":     "discovery",
			"event":         "callback_failed",
			"request_id":    d.ID,
			"error_message": err.Error(),
		})
		return
	}
	resp.Body.Close()
}

// Get returns a discovery by ID.
func (s *discoveryService) Get(ctx context.Context, id string) (*model.Discovery, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns paginated discoveries without exposing repository types.
func (s *discoveryService) List(ctx context.Context, limit, offset int) (*DiscoveryListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DiscoveryListResult{Items: res.Items, Total: res.Total}, nil
}

// OpenResult streams one result file, or the packed archive for ArchiveName.
func (s *discoveryService) OpenResult(ctx context.Context, id, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	if id == "" {
		return nil, storage.ObjectInfo{}, ErrIDRequired
	}
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return nil, storage.ObjectInfo{}, ErrInvalidFilename
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if d.Status != model.StatusSuccess {
		return nil, storage.ObjectInfo{}, ErrResultNotReady
	}

	key := outputKey(id, filename)
	if filename == ArchiveName && d.ArchivePath != "" {
		key = d.ArchivePath
	}
	return s.store.Get(ctx, key)
}

// Delete removes every stored object of the discovery, then its record.
func (s *discoveryService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeletePrefix(ctx, "discoveries/"+id+"/"); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

// Wait blocks until all background runs have finished. Used on shutdown.
func (s *discoveryService) Wait() {
	s.wg.Wait()
}

func logEvent(data map[string]any) {
	data["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		data["level"] = "info"
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
