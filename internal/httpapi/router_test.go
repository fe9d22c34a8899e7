package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/csv-ingest/internal/blobstore"
	"github.com/yourorg/csv-ingest/internal/config"
	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/orchestrator"
	"github.com/yourorg/csv-ingest/internal/queue"
	"github.com/yourorg/csv-ingest/internal/relstore"
)

func init() {
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

var (
	_ blobstore.Store = (*memBlobs)(nil)
	_ relstore.Store  = (*memStore)(nil)
	_ queue.Queue     = (*syncQueue)(nil)
)

// memBlobs is a minimal in-process blobstore.Store fake, mirroring the
// one used for orchestrator's own tests.
type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{data: make(map[string][]byte)} }

func (b *memBlobs) Save(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Load(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, notFoundErr{"blob"}
	}
	return v, nil
}

func (b *memBlobs) Path(_ context.Context, key string) (string, error) { return key, nil }

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBlobs) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok, nil
}

type notFoundErr struct{ what string }

func (e notFoundErr) Error() string { return e.what + ": not found" }

// memStore is an in-process relstore.Store fake that stores rows in maps.
type memStore struct {
	mu         sync.Mutex
	schemas    map[string]*model.CanonicalSchema
	ingestions map[string]*model.Ingestion
	templates  map[string]*model.MappingTemplate
	logs       []model.DecisionLog
}

func newMemStoreForRouterTest() *memStore {
	return &memStore{
		schemas:    make(map[string]*model.CanonicalSchema),
		ingestions: make(map[string]*model.Ingestion),
		templates:  make(map[string]*model.MappingTemplate),
	}
}

func (s *memStore) SaveSchema(_ context.Context, schema *model.CanonicalSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *schema
	s.schemas[schema.ID] = &cp
	return nil
}

func (s *memStore) GetSchema(_ context.Context, id string) (*model.CanonicalSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.schemas[id]
	if !ok {
		return nil, relstore.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) SaveIngestion(_ context.Context, ingestion *model.Ingestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ingestion
	s.ingestions[ingestion.ID] = &cp
	return nil
}

func (s *memStore) GetIngestion(_ context.Context, id string) (*model.Ingestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ingestions[id]
	if !ok {
		return nil, relstore.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) SaveMappingTemplate(_ context.Context, tmpl *model.MappingTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tmpl
	s.templates[tmpl.ID] = &cp
	return nil
}

func (s *memStore) GetMappingTemplate(_ context.Context, schemaID, fingerprint string) (*model.MappingTemplate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.SchemaID == schemaID && t.SourceFingerprint == fingerprint {
			cp := *t
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (s *memStore) IncrementTemplateUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.templates[id]; ok {
		t.UsageCount++
	}
	return nil
}

func (s *memStore) Append(_ context.Context, entry model.DecisionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) ListByIngestion(_ context.Context, ingestionID string) ([]model.DecisionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DecisionLog
	for _, l := range s.logs {
		if l.IngestionID == ingestionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) ListByStage(_ context.Context, ingestionID string, stage model.Stage) ([]model.DecisionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DecisionLog
	for _, l := range s.logs {
		if l.IngestionID == ingestionID && l.Stage == stage {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) PurgeStage(_ context.Context, ingestionID string, stage model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.DecisionLog
	for _, l := range s.logs {
		if l.IngestionID == ingestionID && l.Stage == stage {
			continue
		}
		kept = append(kept, l)
	}
	s.logs = kept
	return nil
}

// syncQueue runs each stage's handler inline on Enqueue, cascading an
// ingestion through the whole pipeline within the initial HTTP request.
type syncQueue struct {
	handlers map[string]queue.Handler
}

func newSyncQueue() *syncQueue { return &syncQueue{handlers: make(map[string]queue.Handler)} }

func (q *syncQueue) Enqueue(ctx context.Context, job queue.Job) error {
	h, ok := q.handlers[job.Queue]
	if !ok {
		return notFoundErr{"handler for " + job.Queue}
	}
	return h(ctx, job)
}

func (q *syncQueue) Subscribe(queueName string, handler queue.Handler) error {
	q.handlers[queueName] = handler
	return nil
}

func (q *syncQueue) Close() error { return nil }

func testRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	cfg := config.LoadConfig()
	cfg.FuzzyThreshold = 0.8

	blobs := newMemBlobs()
	store := newMemStoreForRouterTest()
	q := newSyncQueue()

	orch := orchestrator.New(blobs, store, q, cfg, nil)
	if err := orch.RegisterWorkers(); err != nil {
		t.Fatalf("RegisterWorkers: %v", err)
	}

	router := SetupRouter(cfg, orch, store, nil)
	return router, store
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStartFromUpload_PassthroughCompletes(t *testing.T) {
	router, store := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "people.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("name,age\nAlice,30\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingestions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected a non-empty ingestion id")
	}

	ing, err := store.GetIngestion(req.Context(), resp.ID)
	if err != nil {
		t.Fatalf("GetIngestion: %v", err)
	}
	if ing.Status != model.StatusComplete {
		t.Errorf("status = %s, want complete (using a synchronous fake queue)", ing.Status)
	}
}

func TestGetIngestion_UnknownIDReturns404(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingestions/does-not-exist", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateSchema_ThenGet(t *testing.T) {
	router, _ := testRouter(t)

	body := `{"name":"people","columns":[{"name":"full_name","type":"string","required":true}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schemas", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var schema model.CanonicalSchema
	if err := json.Unmarshal(rec.Body.Bytes(), &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+schema.ID, nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
