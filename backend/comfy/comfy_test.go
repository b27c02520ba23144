package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/workflow"
)

const testGraph = `{
  "3": {"class_type": "KSampler", "inputs": {"steps": 20}},
  "9": {"class_type": "SaveImage", "inputs": {"images": ["3", 0]}}
}`

func testWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.Parse("test", []byte(testGraph))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return wf
}

// fakeService is a minimal in-process stand-in for the queue service: it
// acknowledges prompts and replays a scripted event stream to each
// websocket client.
type fakeService struct {
	t        *testing.T
	promptID string
	events   []string
	srv      *httptest.Server

	promptCh chan json.RawMessage
}

func newFakeService(t *testing.T, promptID string, events []string) *fakeService {
	t.Helper()
	f := &fakeService{
		t:        t,
		promptID: promptID,
		events:   events,
		promptCh: make(chan json.RawMessage, 4),
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.promptCh <- body
		fmt.Fprintf(w, `{"prompt_id": %q, "number": 1}`, f.promptID)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, ev := range f.events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
				return
			}
		}
		// Hold the stream open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/interrupt", func(w http.ResponseWriter, r *http.Request) {})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func successEvents(promptID string) []string {
	return []string{
		fmt.Sprintf(`{"type": "executing", "data": {"prompt_id": %q, "node": "3"}}`, promptID),
		fmt.Sprintf(`{"type": "executed", "data": {"prompt_id": %q, "node": "9", "output": {"images": [{"filename": "out_00001.png", "subfolder": "", "type": "output"}]}}}`, promptID),
		fmt.Sprintf(`{"type": "executing", "data": {"prompt_id": %q, "node": null}}`, promptID),
	}
}

func TestSplitBaseURLs(t *testing.T) {
	tests := []struct {
		base     string
		wantHTTP string
		wantWS   string
	}{
		{"http://127.0.0.1:8188", "http://127.0.0.1:8188", "ws://127.0.0.1:8188/ws"},
		{"http://127.0.0.1:8188/", "http://127.0.0.1:8188", "ws://127.0.0.1:8188/ws"},
		{"https://comfy.example.com", "https://comfy.example.com", "wss://comfy.example.com/ws"},
		{"https://host/prefix", "https://host/prefix", "wss://host/prefix/ws"},
	}
	for _, tt := range tests {
		gotHTTP, gotWS, err := splitBaseURLs(tt.base)
		if err != nil {
			t.Errorf("splitBaseURLs(%q) error = %v", tt.base, err)
			continue
		}
		if gotHTTP != tt.wantHTTP || gotWS != tt.wantWS {
			t.Errorf("splitBaseURLs(%q) = (%q, %q), want (%q, %q)",
				tt.base, gotHTTP, gotWS, tt.wantHTTP, tt.wantWS)
		}
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrBaseURLRequired) {
		t.Fatalf("New() error = %v, want ErrBaseURLRequired", err)
	}
}

func TestAdapter_SuccessfulRun(t *testing.T) {
	svc := newFakeService(t, "p-1", successEvents("p-1"))
	a, err := New(Config{BaseURL: svc.srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.ID != "p-1" {
		t.Errorf("Submit() handle ID = %q, want p-1", h.ID)
	}

	// The posted prompt carries the graph, client id, and api key.
	var posted map[string]any
	select {
	case raw := <-svc.promptCh:
		if err := json.Unmarshal(raw, &posted); err != nil {
			t.Fatalf("prompt body: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("no prompt posted")
	}
	if posted["prompt"] == nil {
		t.Error("prompt body missing graph")
	}
	if posted["client_id"] == "" {
		t.Error("prompt body missing client_id")
	}
	extra, _ := posted["extra_data"].(map[string]any)
	if extra["api_key_comfy_org"] != "sk-test" {
		t.Errorf("extra_data = %v, want api key forwarded", posted["extra_data"])
	}

	st, err := a.Wait(ctx, h)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st != backend.StatusSucceeded {
		t.Fatalf("Wait() status = %q, want succeeded", st)
	}

	arts, err := a.FetchOutput(ctx, h)
	if err != nil {
		t.Fatalf("FetchOutput() error = %v", err)
	}
	out, ok := arts["9"]
	if !ok {
		t.Fatalf("FetchOutput() missing node 9, got %v", arts)
	}
	if len(out.Images) != 1 {
		t.Fatalf("node 9 images = %v, want one", out.Images)
	}
	if !strings.Contains(out.Images[0], "/view?") || !strings.Contains(out.Images[0], "filename=out_00001.png") {
		t.Errorf("image ref = %q, want a /view URL", out.Images[0])
	}
}

func TestAdapter_FetchOutputReleasesJob(t *testing.T) {
	svc := newFakeService(t, "p-9", successEvents("p-9"))
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := a.Wait(ctx, h); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if _, err := a.FetchOutput(ctx, h); err != nil {
		t.Fatalf("FetchOutput() error = %v", err)
	}

	// The handle is released on the first fetch.
	if _, err := a.FetchOutput(ctx, h); !errors.Is(err, backend.ErrUnknownHandle) {
		t.Errorf("second FetchOutput() error = %v, want ErrUnknownHandle", err)
	}
	if _, err := a.Poll(ctx, h); !errors.Is(err, backend.ErrUnknownHandle) {
		t.Errorf("Poll() after fetch error = %v, want ErrUnknownHandle", err)
	}
	if err := a.Release(h); !errors.Is(err, backend.ErrUnknownHandle) {
		t.Errorf("Release() after fetch error = %v, want ErrUnknownHandle", err)
	}
}

func TestAdapter_ReleaseDropsFailedJob(t *testing.T) {
	events := []string{
		`{"type": "execution_error", "data": {"prompt_id": "p-10", "node_id": "3", "exception_message": "boom"}}`,
	}
	svc := newFakeService(t, "p-10", events)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if st, _ := a.Wait(ctx, h); st != backend.StatusFailed {
		t.Fatalf("Wait() status = %q, want failed", st)
	}

	if err := a.Release(h); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := a.Poll(ctx, h); !errors.Is(err, backend.ErrUnknownHandle) {
		t.Errorf("Poll() after release error = %v, want ErrUnknownHandle", err)
	}
}

func TestAdapter_ExecutionError(t *testing.T) {
	events := []string{
		`{"type": "executing", "data": {"prompt_id": "p-2", "node": "3"}}`,
		`{"type": "execution_error", "data": {"prompt_id": "p-2", "node_id": "3", "node_type": "KSampler", "exception_message": "out of memory"}}`,
	}
	svc := newFakeService(t, "p-2", events)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	st, err := a.Wait(ctx, h)
	if st != backend.StatusFailed {
		t.Fatalf("Wait() status = %q, want failed", st)
	}
	if !errors.Is(err, backend.ErrExecutionFailed) {
		t.Fatalf("Wait() error = %v, want ErrExecutionFailed", err)
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("Wait() error = %v, want service message preserved", err)
	}
}

func TestAdapter_IgnoresOtherPrompts(t *testing.T) {
	events := []string{
		`{"type": "executed", "data": {"prompt_id": "other", "node": "9", "output": {"images": [{"filename": "stray.png", "subfolder": "", "type": "output"}]}}}`,
		`{"type": "execution_error", "data": {"prompt_id": "other", "node_id": "3", "exception_message": "boom"}}`,
		`{"type": "executing", "data": {"prompt_id": "p-3", "node": null}}`,
	}
	svc := newFakeService(t, "p-3", events)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	st, err := a.Wait(ctx, h)
	if err != nil || st != backend.StatusSucceeded {
		t.Fatalf("Wait() = (%q, %v), want succeeded", st, err)
	}
	arts, err := a.FetchOutput(ctx, h)
	if err != nil {
		t.Fatalf("FetchOutput() error = %v", err)
	}
	if len(arts) != 0 {
		t.Errorf("artifacts = %v, want none collected from other prompts", arts)
	}
}

func TestAdapter_SubmitRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid prompt"}`, http.StatusBadRequest)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)}); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("Submit() error = %v, want ErrSubmitFailed", err)
	}
}

func TestAdapter_Cancel(t *testing.T) {
	// A single "running" event, then the stream is held open.
	events := []string{
		`{"type": "executing", "data": {"prompt_id": "p-4", "node": "3"}}`,
	}
	svc := newFakeService(t, "p-4", events)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := a.Submit(ctx, backend.Submission{Workflow: testWorkflow(t)})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := a.Cancel(ctx, h); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	st, err := a.Wait(ctx, h)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if st != backend.StatusCancelled {
		t.Fatalf("Wait() status = %q, want cancelled", st)
	}
}

func TestAdapter_UnknownHandle(t *testing.T) {
	svc := newFakeService(t, "p-5", nil)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	_, err = a.Poll(context.Background(), backend.Handle{ID: "nope", Adapter: "comfy"})
	if !errors.Is(err, backend.ErrUnknownHandle) {
		t.Fatalf("Poll() error = %v, want ErrUnknownHandle", err)
	}
}

func TestStage(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer source.Close()

	var uploadedName string
	var uploadedBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		uploadedName = hdr.Filename
		uploadedBody = string(data)
		fmt.Fprintf(w, `{"name": %q, "subfolder": "", "type": "input"}`, hdr.Filename)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	name, err := a.Stage(context.Background(), source.URL+"/photos/cat.png")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if name != "cat.png" {
		t.Errorf("Stage() = %q, want cat.png", name)
	}
	if uploadedName != "cat.png" {
		t.Errorf("uploaded filename = %q, want cat.png", uploadedName)
	}
	if uploadedBody != "png-bytes" {
		t.Errorf("uploaded body = %q, want source content", uploadedBody)
	}
}

func TestStage_SourceUnavailable(t *testing.T) {
	svc := newFakeService(t, "p-6", nil)
	a, err := New(Config{BaseURL: svc.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Stage(context.Background(), "http://127.0.0.1:1/missing.png"); !errors.Is(err, ErrStageFailed) {
		t.Fatalf("Stage() error = %v, want ErrStageFailed", err)
	}
}
