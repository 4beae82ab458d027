package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"scribeq/internal/api"
	"scribeq/internal/config"
	"scribeq/internal/daemon"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
	"scribeq/internal/testsupport"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	d, _ := newDaemon(t, testsupport.NewConfig(t))
	h := d.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/jobs", map[string]any{
		"source_url": "https://media.example/talk.mp3",
		"priority":   3,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode[api.EnqueueResponse](t, w).ID
	if id == "" {
		t.Fatal("expected job id")
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/jobs/"+id, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	if job := decode[api.Job](t, w); job.Status != "enqueued" || job.Priority != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/jobs/claim", api.ClaimRequest{WorkerID: "w1", Limit: 5}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	claimed := decode[api.ClaimResponse](t, w)
	if len(claimed.Jobs) != 1 || claimed.Jobs[0].ID != id || claimed.Jobs[0].Attempts != 1 {
		t.Fatalf("unexpected claim: %+v", claimed)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/jobs/"+id+"/finalize", api.FinalizeRequest{
		Status:           "succeeded",
		Transcript:       "hello",
		TranscriptFormat: "text",
	}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("finalize: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/jobs?status=succeeded", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	list := decode[api.JobListResponse](t, w)
	if len(list.Jobs) != 1 || list.Jobs[0].Transcript != "hello" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, nil)
	stats := decode[api.QueueStatsResponse](t, w)
	if stats.Total != 1 || stats.Counts["succeeded"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRequeueOverHTTP(t *testing.T) {
	d, store := newDaemon(t, testsupport.NewConfig(t))
	h := d.Handler()
	id := testsupport.MustEnqueue(t, store, "https://media.example/a.mp3", 1)
	path := "/api/v1/jobs/" + id + "/requeue"

	w := doJSON(t, h, http.MethodPost, path, api.RequeueRequest{WorkerID: "w1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("requeue of enqueued job: expected 400, got %d", w.Code)
	}
	if _, err := store.Claim(context.Background(), "w1", 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	w = doJSON(t, h, http.MethodPost, path, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("requeue without body: expected 400, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodPost, path, api.RequeueRequest{WorkerID: "w2"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("requeue by other worker: expected 400, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodPost, path, api.RequeueRequest{WorkerID: "w1"}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("requeue: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != queue.StatusEnqueued {
		t.Fatalf("expected enqueued, got %s", job.Status)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	d, _ := newDaemon(t, testsupport.NewConfig(t))
	h := d.Handler()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   queue.Kind
	}{
		{"unknown job", http.MethodGet, "/api/v1/jobs/missing", nil, http.StatusNotFound, queue.KindNotFound},
		{"finalize unknown job", http.MethodPost, "/api/v1/jobs/missing/finalize", api.FinalizeRequest{Status: "failed"}, http.StatusNotFound, queue.KindNotFound},
		{"bad priority", http.MethodPost, "/api/v1/jobs", map[string]any{"source_url": "https://x.example/a", "priority": 0}, http.StatusBadRequest, queue.KindInvalidArgument},
		{"relative url", http.MethodPost, "/api/v1/jobs", map[string]any{"source_url": "a.mp3", "priority": 1}, http.StatusBadRequest, queue.KindInvalidArgument},
		{"claim without worker", http.MethodPost, "/api/v1/jobs/claim", api.ClaimRequest{Limit: 1}, http.StatusBadRequest, queue.KindInvalidArgument},
		{"claim over batch limit", http.MethodPost, "/api/v1/jobs/claim", api.ClaimRequest{WorkerID: "w", Limit: 1000}, http.StatusBadRequest, queue.KindInvalidArgument},
		{"non terminal finalize", http.MethodPost, "/api/v1/jobs/x/finalize", api.FinalizeRequest{Status: "processing"}, http.StatusBadRequest, queue.KindInvalidArgument},
		{"unknown status filter", http.MethodGet, "/api/v1/jobs?status=done", nil, http.StatusBadRequest, queue.KindInvalidArgument},
		{"bad limit", http.MethodGet, "/api/v1/jobs?limit=abc", nil, http.StatusBadRequest, queue.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, tc.method, tc.path, tc.body, nil)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if resp := decode[api.ErrorResponse](t, w); resp.Kind != string(tc.kind) {
				t.Fatalf("expected kind %s, got %+v", tc.kind, resp)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", w.Code)
	}
}

func TestStaticTokenAuth(t *testing.T) {
	d, _ := newDaemon(t, testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret")))
	h := d.Handler()

	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	bad := http.Header{"Authorization": {"Bearer nope"}}
	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	good := http.Header{"Authorization": {"Bearer s3cret"}}
	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, good); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/api/v1/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected health to skip auth, got %d", w.Code)
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTSubjectBecomesSubmitter(t *testing.T) {
	d, store := newDaemon(t, testsupport.NewConfig(t, testsupport.WithJWTSecret("jwt-secret")))
	h := d.Handler()

	token := signToken(t, jwt.SigningMethodHS256, "jwt-secret", jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	header := http.Header{"Authorization": {"Bearer " + token}}
	w := doJSON(t, h, http.MethodPost, "/api/v1/jobs", map[string]any{
		"source_url":   "https://media.example/a.mp3",
		"priority":     1,
		"submitter_id": "mallory",
	}, header)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id := decode[api.EnqueueResponse](t, w).ID
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.SubmitterID != "alice" {
		t.Fatalf("expected submitter from token subject, got %q", job.SubmitterID)
	}

	expired := signToken(t, jwt.SigningMethodHS256, "jwt-secret", jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, http.Header{"Authorization": {"Bearer " + expired}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}
	wrongKey := signToken(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{"sub": "alice"})
	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, http.Header{"Authorization": {"Bearer " + wrongKey}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", w.Code)
	}
	noSubject := signToken(t, jwt.SigningMethodHS256, "jwt-secret", jwt.MapClaims{"scope": "jobs"})
	if w := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil, http.Header{"Authorization": {"Bearer " + noSubject}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without subject, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.CORSOrigins = []string{"https://dashboard.example"}
	d, _ := newDaemon(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
		t.Fatalf("unexpected allow origin %q (status %d)", got, w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	d, _ := newDaemon(t, testsupport.NewConfig(t))
	w := doJSON(t, d.Handler(), http.MethodGet, "/api/v1/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	report := decode[api.HealthReport](t, w)
	if !report.Healthy || report.Database.Driver != queue.DriverSQLite {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDaemonStartStopAndLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock contention to fail second daemon")
	}

	resp, err := http.Get("http://" + status.APIAddress + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from live server, got %d", resp.StatusCode)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}
