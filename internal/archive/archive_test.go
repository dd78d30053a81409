package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/sjawhar/interview-ai/internal/storage"
	"github.com/sjawhar/interview-ai/internal/suggest"
)

func sampleDocument() Document {
	started := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	score := 82.0
	return Document{
		Session: storage.Session{ID: "s1", Title: "Backend interview", DifficultyLevel: "medium", StartedAt: &started},
		Questions: []storage.Question{
			{ID: 1, Text: "Explain goroutines", Type: "technical", Difficulty: "medium"},
		},
		History: []storage.Exchange{
			{QuestionID: 1, Question: "Explain goroutines", Response: "Lightweight threads", Score: &score},
			{QuestionID: 7, Response: "Orphan answer"},
		},
		Summary: suggest.Summary{
			OverallScore:     80,
			Strengths:        []string{"Clear"},
			DetailedFeedback: "Solid grasp of concurrency.",
			SkillAssessment:  suggest.SkillAssessment{StrongSkills: []string{"go"}},
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := Render(sampleDocument())

	wants := []string{
		"# Backend interview",
		"- Session: `s1`",
		"- Started: 2026-02-26T10:00:00Z",
		"- Overall score: 80/100",
		"1. Explain goroutines _(technical, medium)_",
		"**A:** Lightweight threads",
		"_Score: 82_",
		"**Q:** Question 7",
		"### Strengths\n\n- Clear",
		"### Strong skills\n\n- go",
		"Solid grasp of concurrency.",
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Areas for improvement") {
		t.Error("empty sections should be omitted")
	}
}

func TestExporterOverwrites(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir)

	doc := sampleDocument()
	if _, err := e.Export(doc); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	doc.Summary.OverallScore = 55
	path, err := e.Export(doc)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if path != filepath.Join(dir, "s1.md") {
		t.Fatalf("unexpected path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "55/100") || strings.Contains(string(data), "80/100") {
		t.Fatalf("expected overwritten export, got:\n%s", data)
	}
}

type uploaderMock struct {
	calls []string
	err   error
}

func (u *uploaderMock) Upload(_ context.Context, localPath, sessionID string) error {
	u.calls = append(u.calls, sessionID+"="+localPath)
	return u.err
}

func TestArchiverUploads(t *testing.T) {
	dir := t.TempDir()
	up := &uploaderMock{}
	a := New(dir, up)

	path, err := a.Archive(context.Background(), sampleDocument())
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if len(up.calls) != 1 || up.calls[0] != "s1="+path {
		t.Fatalf("unexpected uploads: %v", up.calls)
	}
}

func TestArchiverKeepsLocalPathOnUploadFailure(t *testing.T) {
	up := &uploaderMock{err: errors.New("quota")}
	a := New(t.TempDir(), up)

	path, err := a.Archive(context.Background(), sampleDocument())
	if err == nil || path == "" {
		t.Fatalf("expected local path with upload error, got %q, %v", path, err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected local export to exist: %v", statErr)
	}
}

func TestArchiverWithoutUploader(t *testing.T) {
	a := New(t.TempDir(), nil)
	if _, err := a.Archive(context.Background(), sampleDocument()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
}

func TestDriveUploaderCreatesThenUpdates(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"file-1"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	u, err := newDriveUploader(ctx, "folder", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("newDriveUploader failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "s1.md")
	if err := os.WriteFile(path, []byte("# hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := u.Upload(ctx, path, "s1"); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}
	if u.fileIDs["s1"] != "file-1" {
		t.Fatalf("expected file id remembered, got %v", u.fileIDs)
	}
	if err := u.Upload(ctx, path, "s1"); err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodPost || methods[1] != http.MethodPatch {
		t.Fatalf("expected create then update, got %v", methods)
	}
}

func TestDriveUploaderMissingFile(t *testing.T) {
	u, err := newDriveUploader(context.Background(), "folder", option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:0/"))
	if err != nil {
		t.Fatalf("newDriveUploader failed: %v", err)
	}
	if err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.md"), "s1"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
