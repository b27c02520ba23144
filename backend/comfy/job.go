package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jonwraymond/flowtool/backend"
	"github.com/jonwraymond/flowtool/workflow"
)

// job tracks one prompt's lifecycle on the local service. The run loop is
// the only writer of artifacts; status transitions are guarded by mu and
// never move out of a terminal state.
type job struct {
	clientID string
	wf       *workflow.Workflow

	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	promptID  string
	status    backend.Status
	execErr   *backend.ExecutionError
	artifacts backend.Artifacts
}

func newJob(wf *workflow.Workflow) *job {
	ctx, cancel := context.WithCancel(context.Background())
	return &job{
		clientID:  uuid.NewString(),
		wf:        wf,
		runCtx:    ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    backend.StatusPending,
		artifacts: make(backend.Artifacts),
	}
}

func (j *job) state() (backend.Status, *backend.ExecutionError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.execErr
}

func (j *job) collected() backend.Artifacts {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(backend.Artifacts, len(j.artifacts))
	for k, v := range j.artifacts {
		out[k] = v
	}
	return out
}

func (j *job) setStatus(st backend.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = st
}

func (j *job) markFailed(execErr *backend.ExecutionError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = backend.StatusFailed
	j.execErr = execErr
}

func (j *job) markCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = backend.StatusCancelled
}

// streamMessage is the envelope of the service's websocket events.
type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type executedData struct {
	PromptID string                     `json:"prompt_id"`
	Node     string                     `json:"node"`
	Output   map[string]json.RawMessage `json:"output"`
}

type executingData struct {
	PromptID string  `json:"prompt_id"`
	Node     *string `json:"node"`
}

type executionErrorData struct {
	PromptID         string `json:"prompt_id"`
	NodeID           string `json:"node_id"`
	NodeType         string `json:"node_type"`
	ExceptionMessage string `json:"exception_message"`
}

type fileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// runJob executes one prompt end to end inside a pool slot: open the
// event stream, enqueue the prompt, then consume events until the run
// terminates. The first send on queued reports whether the prompt was
// accepted.
func (a *Adapter) runJob(j *job, queued chan<- error) {
	defer close(j.done)

	conn, err := a.dialStream(j)
	if err != nil {
		j.markFailed(nil)
		queued <- fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		return
	}
	defer conn.Close()

	promptID, err := a.enqueuePrompt(j)
	if err != nil {
		j.markFailed(nil)
		queued <- err
		return
	}
	j.mu.Lock()
	j.promptID = promptID
	j.mu.Unlock()
	queued <- nil

	// Tear down the read loop when the job is cancelled.
	go func() {
		<-j.runCtx.Done()
		conn.Close()
	}()

	a.consumeStream(j, conn, promptID)
}

func (a *Adapter) dialStream(j *job) (*websocket.Conn, error) {
	hdr := http.Header{}
	if a.cookie != "" {
		hdr.Set("Cookie", a.cookie)
	}
	wsURL := a.wsBase + "?clientId=" + url.QueryEscape(j.clientID)
	conn, resp, err := a.dialer.DialContext(j.runCtx, wsURL, hdr)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// enqueuePrompt posts the bound graph and returns the service-assigned
// prompt id.
func (a *Adapter) enqueuePrompt(j *job) (string, error) {
	payload := map[string]any{
		"prompt":    j.wf,
		"client_id": j.clientID,
	}
	if a.apiKey != "" {
		payload["extra_data"] = map[string]any{"api_key_comfy_org": a.apiKey}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	req, err := http.NewRequestWithContext(j.runCtx, http.MethodPost, a.httpBase+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrSubmitFailed, resp.StatusCode, truncate(data, 256))
	}

	var ack struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.PromptID == "" {
		return "", fmt.Errorf("%w: malformed ack: %s", ErrSubmitFailed, truncate(data, 256))
	}
	return ack.PromptID, nil
}

// consumeStream reads events for promptID until the run completes, fails,
// or the stream drops.
func (a *Adapter) consumeStream(j *job, conn *websocket.Conn, promptID string) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if st, _ := j.state(); !st.Terminal() {
				if j.runCtx.Err() != nil {
					j.markCancelled()
				} else {
					j.markFailed(&backend.ExecutionError{
						Handle:  backend.Handle{ID: promptID, Adapter: a.name},
						Message: fmt.Sprintf("event stream closed: %v", err),
					})
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue // binary preview frames
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if done := a.handleEvent(j, promptID, msg); done {
			return
		}
	}
}

// handleEvent applies one stream event to the job. It reports true when
// the run has reached a terminal state.
func (a *Adapter) handleEvent(j *job, promptID string, msg streamMessage) bool {
	switch msg.Type {
	case "executing":
		var d executingData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != promptID {
			return false
		}
		if d.Node == nil {
			// A nil node marks the end of the run.
			j.setStatus(backend.StatusSucceeded)
			return true
		}
		j.setStatus(backend.StatusRunning)

	case "executed":
		var d executedData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != promptID {
			return false
		}
		j.setStatus(backend.StatusRunning)
		a.collectOutput(j, d.Node, d.Output)

	case "execution_error":
		var d executionErrorData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != promptID {
			return false
		}
		j.markFailed(&backend.ExecutionError{
			Handle:  backend.Handle{ID: promptID, Adapter: a.name},
			Message: fmt.Sprintf("node %s (%s): %s", d.NodeID, d.NodeType, d.ExceptionMessage),
		})
		return true
	}
	return false
}

// collectOutput merges one node's executed payload into the job's
// artifacts. File entries become /view URLs; text entries are kept as-is.
func (a *Adapter) collectOutput(j *job, nodeID string, output map[string]json.RawMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	no := j.artifacts[nodeID]

	for _, raw := range output {
		var files []fileRef
		if err := json.Unmarshal(raw, &files); err == nil && len(files) > 0 && files[0].Filename != "" {
			for _, f := range files {
				no.AddMediaNamed(f.Filename, a.viewURL(f))
			}
			continue
		}
		var texts []string
		if err := json.Unmarshal(raw, &texts); err == nil {
			no.Texts = append(no.Texts, texts...)
		}
	}
	j.artifacts[nodeID] = no
}

// viewURL builds the service URL at which an output file can be fetched.
func (a *Adapter) viewURL(f fileRef) string {
	q := url.Values{}
	q.Set("filename", f.Filename)
	q.Set("subfolder", f.Subfolder)
	q.Set("type", f.Type)
	return a.httpBase + "/view?" + q.Encode()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
