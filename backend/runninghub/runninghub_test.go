package runninghub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/workflow"
)

// fakeProvider replays canned envelope responses per endpoint and records
// the JSON bodies it received.
type fakeProvider struct {
	t         *testing.T
	responses map[string]string
	bodies    map[string][]byte
	srv       *httptest.Server
}

func newFakeProvider(t *testing.T, responses map[string]string) *fakeProvider {
	t.Helper()
	f := &fakeProvider{t: t, responses: responses, bodies: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.bodies[r.URL.Path] = body
		resp, ok := f.responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, resp)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) requestBody(t *testing.T, endpoint string) map[string]any {
	t.Helper()
	raw, ok := f.bodies[endpoint]
	if !ok {
		t.Fatalf("no request recorded for %s", endpoint)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("request body for %s: %v", endpoint, err)
	}
	return m
}

func newTestAdapter(t *testing.T, f *fakeProvider) *Adapter {
	t.Helper()
	a, err := New(Config{APIKey: "key-1", BaseURL: f.srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("New() error = %v, want ErrAPIKeyRequired", err)
	}
}

func TestSubmit(t *testing.T) {
	f := newFakeProvider(t, map[string]string{
		"/task/openapi/create": `{"code": 0, "msg": "success", "data": {"taskId": "t-100", "clientId": "c-1", "taskStatus": "QUEUED"}}`,
	})
	a := newTestAdapter(t, f)

	sub := backend.Submission{
		RemoteID: "wf-42",
		Bindings: []workflow.Binding{
			{NodeID: "6", Field: "text", Value: "a red fox"},
			{NodeID: "3", Field: "steps", Value: int64(25)},
		},
	}
	h, err := a.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.ID != "t-100" || h.Adapter != "runninghub" {
		t.Errorf("Submit() handle = %+v, want t-100/runninghub", h)
	}

	body := f.requestBody(t, "/task/openapi/create")
	if body["apiKey"] != "key-1" {
		t.Errorf("create body apiKey = %v", body["apiKey"])
	}
	if body["workflowId"] != "wf-42" {
		t.Errorf("create body workflowId = %v", body["workflowId"])
	}
	infos, _ := body["nodeInfoList"].([]any)
	if len(infos) != 2 {
		t.Fatalf("nodeInfoList = %v, want two entries", body["nodeInfoList"])
	}
	first, _ := infos[0].(map[string]any)
	if first["nodeId"] != "6" || first["fieldName"] != "text" || first["fieldValue"] != "a red fox" {
		t.Errorf("nodeInfoList[0] = %v", first)
	}
}

func TestSubmit_RequiresWorkflowID(t *testing.T) {
	f := newFakeProvider(t, nil)
	a := newTestAdapter(t, f)
	if _, err := a.Submit(context.Background(), backend.Submission{}); !errors.Is(err, ErrWorkflowIDRequired) {
		t.Fatalf("Submit() error = %v, want ErrWorkflowIDRequired", err)
	}
}

func TestSubmit_APIError(t *testing.T) {
	f := newFakeProvider(t, map[string]string{
		"/task/openapi/create": `{"code": 805, "msg": "TASK_QUEUE_MAXED", "data": null}`,
	})
	a := newTestAdapter(t, f)

	_, err := a.Submit(context.Background(), backend.Submission{RemoteID: "wf-42"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Submit() error = %v, want *APIError", err)
	}
	if apiErr.Code != 805 || apiErr.Msg != "TASK_QUEUE_MAXED" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestPoll_StatusMapping(t *testing.T) {
	tests := []struct {
		raw         string
		want        backend.Status
		wantExecErr bool
	}{
		{"QUEUED", backend.StatusPending, false},
		{"RUNNING", backend.StatusRunning, false},
		{"SUCCESS", backend.StatusSucceeded, false},
		{"FAILED", backend.StatusFailed, true},
	}
	for _, tt := range tests {
		f := newFakeProvider(t, map[string]string{
			"/task/openapi/status": fmt.Sprintf(`{"code": 0, "msg": "success", "data": %q}`, tt.raw),
		})
		a := newTestAdapter(t, f)

		st, err := a.Poll(context.Background(), backend.Handle{ID: "t-1", Adapter: "runninghub"})
		if st != tt.want {
			t.Errorf("Poll(%s) status = %q, want %q", tt.raw, st, tt.want)
		}
		if tt.wantExecErr {
			if !errors.Is(err, backend.ErrExecutionFailed) {
				t.Errorf("Poll(%s) error = %v, want ErrExecutionFailed", tt.raw, err)
			}
		} else if err != nil {
			t.Errorf("Poll(%s) error = %v", tt.raw, err)
		}
	}
}

func TestPoll_UnknownStatus(t *testing.T) {
	f := newFakeProvider(t, map[string]string{
		"/task/openapi/status": `{"code": 0, "msg": "success", "data": "EXPLODED"}`,
	})
	a := newTestAdapter(t, f)
	if _, err := a.Poll(context.Background(), backend.Handle{ID: "t-1"}); err == nil {
		t.Fatal("Poll() error = nil, want unknown status error")
	}
}

func TestFetchOutput(t *testing.T) {
	f := newFakeProvider(t, map[string]string{
		"/task/openapi/outputs": `{"code": 0, "msg": "success", "data": [
			{"fileUrl": "https://cdn.example.com/out/t-1/result.png", "fileType": "png", "nodeId": "9"},
			{"fileUrl": "https://cdn.example.com/out/t-1/result.mp4", "fileType": "mp4", "nodeId": "12"},
			{"text": "a caption", "nodeId": "15"}
		]}`,
	})
	a := newTestAdapter(t, f)

	arts, err := a.FetchOutput(context.Background(), backend.Handle{ID: "t-1"})
	if err != nil {
		t.Fatalf("FetchOutput() error = %v", err)
	}
	if got := arts["9"].Images; len(got) != 1 || got[0] != "https://cdn.example.com/out/t-1/result.png" {
		t.Errorf("node 9 images = %v", got)
	}
	if got := arts["12"].Videos; len(got) != 1 {
		t.Errorf("node 12 videos = %v", got)
	}
	if got := arts["15"].Texts; len(got) != 1 || got[0] != "a caption" {
		t.Errorf("node 15 texts = %v", got)
	}
}

func TestCancel_DeclinedIsNotFatal(t *testing.T) {
	f := newFakeProvider(t, map[string]string{
		"/task/openapi/cancel": `{"code": 807, "msg": "TASK_ALREADY_FINISHED", "data": null}`,
	})
	a := newTestAdapter(t, f)
	if err := a.Cancel(context.Background(), backend.Handle{ID: "t-1"}); err != nil {
		t.Fatalf("Cancel() error = %v, want nil on provider decline", err)
	}
}

func TestWorkflowJSON(t *testing.T) {
	graph := `{"3": {"class_type": "KSampler", "inputs": {"steps": 20}}}`
	payload, _ := json.Marshal(map[string]any{"prompt": graph})
	f := newFakeProvider(t, map[string]string{
		"/api/openapi/getJsonApiFormat": fmt.Sprintf(`{"code": 0, "msg": "success", "data": %s}`, payload),
	})
	a := newTestAdapter(t, f)

	data, err := a.WorkflowJSON(context.Background(), "wf-42")
	if err != nil {
		t.Fatalf("WorkflowJSON() error = %v", err)
	}
	wf, err := workflow.Parse("hosted", data)
	if err != nil {
		t.Fatalf("Parse(WorkflowJSON()) error = %v", err)
	}
	if len(wf.NodeIDs()) != 1 {
		t.Errorf("hosted graph nodes = %v", wf.NodeIDs())
	}
}
