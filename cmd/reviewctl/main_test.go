package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/finishline/internal/adapters/detection"
	"github.com/okian/finishline/internal/adapters/http/api"
	"github.com/okian/finishline/internal/adapters/repository"
	service "github.com/okian/finishline/internal/app"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
)

var faceBox = model.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.3}

// startServer runs a real service behind the API with one image that fuses
// to a single queue item for ath-2.
func startServer(t *testing.T) string {
	t.Helper()
	if err := logger.InitWith(&bytes.Buffer{}, logger.FormatText); err != nil {
		t.Fatalf("logger: %v", err)
	}
	ctx := context.Background()

	store := repository.NewMemoryStore()
	if _, err := store.UpsertStartList(ctx, []model.StartListEntry{
		{EventID: "berlin", BibNumber: "202", AthleteID: "ath-2", Name: "Bo"},
	}); err != nil {
		t.Fatalf("start list: %v", err)
	}
	det := detection.NewStaticDetector(map[string]detection.Fixture{
		"finish-001.jpg": {Faces: []detection.StaticFace{{Box: faceBox, AthleteID: "ath-2", Similarity: 75, Confidence: 99}}},
	})

	svc, err := service.New(store, det, service.WithWorkerCount(1), service.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(ctx) })

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", url, "--user", "rev-1", "--role", "editor"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in output:\n%s", want, out)
	}
}

func TestReviewWorkflow(t *testing.T) {
	url := startServer(t)

	jobs := filepath.Join(t.TempDir(), "jobs.yaml")
	doc := "- {job_id: j1, image_id: img-1, event_id: berlin, image_ref: finish-001.jpg}\n" +
		"- {job_id: j1, image_id: img-1, event_id: berlin, image_ref: finish-001.jpg}\n"
	if err := os.WriteFile(jobs, []byte(doc), 0o600); err != nil {
		t.Fatalf("write jobs: %v", err)
	}

	out, err := runCLI(t, url, "submit", "-f", jobs, "--workers", "1")
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}
	requireContains(t, out, "accepted")

	var listed string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		listed, err = runCLI(t, url, "queue", "list", "--json")
		if err == nil && strings.Contains(listed, "ath-2") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	requireContains(t, listed, "ath-2")

	out, err = runCLI(t, url, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "ath-2")
	requireContains(t, out, "PENDING")
	id := queueItemID(t, listed)

	out, err = runCLI(t, url, "claim", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	requireContains(t, out, "Claimed "+id)

	out, err = runCLI(t, url, "approve", id, "--notes", "bib hidden, face clear")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	requireContains(t, out, "Approved "+id)

	if _, err := runCLI(t, url, "approve", id); err == nil {
		t.Fatal("expected second approve to fail")
	}

	out, err = runCLI(t, url, "image", "img-1")
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	requireContains(t, out, "APPROVED")

	out, err = runCLI(t, url, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "workerCount")
}

func TestFlagValidation(t *testing.T) {
	url := startServer(t)

	if _, err := runCLI(t, url, "reject", "q1"); err == nil || !strings.Contains(err.Error(), "--reason") {
		t.Fatalf("expected missing reason error, got %v", err)
	}
	if _, err := runCLI(t, url, "reassign", "q1"); err == nil || !strings.Contains(err.Error(), "--to") {
		t.Fatalf("expected missing target error, got %v", err)
	}
	if _, err := runCLI(t, url, "submit"); err == nil {
		t.Fatal("expected missing file error")
	}
	if _, err := runCLI(t, url, "queue", "show"); err == nil {
		t.Fatal("expected argument error")
	}
	if _, err := runCLI(t, url, "queue", "show", "missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func queueItemID(t *testing.T, listJSON string) string {
	t.Helper()
	const key = `"queue_item_id": "`
	i := strings.Index(listJSON, key)
	if i < 0 {
		t.Fatalf("no queue item in %s", listJSON)
	}
	rest := listJSON[i+len(key):]
	return rest[:strings.Index(rest, `"`)]
}
