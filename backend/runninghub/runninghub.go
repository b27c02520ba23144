package runninghub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/jonwraymond/flowtool/backend"
)

// DefaultBaseURL is the hosted API endpoint.
const DefaultBaseURL = "https://www.runninghub.ai"

// Errors for cloud adapter operations.
var (
	// ErrAPIKeyRequired is returned when no account key is configured.
	ErrAPIKeyRequired = errors.New("runninghub: APIKey is required")

	// ErrWorkflowIDRequired is returned when a submission names no hosted
	// workflow.
	ErrWorkflowIDRequired = errors.New("runninghub: submission has no workflow id")
)

// APIError is a non-zero envelope code returned by the provider.
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runninghub: %s: code %d: %s", e.Endpoint, e.Code, e.Msg)
}

// Logger is the interface for logging.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config configures a cloud job adapter.
type Config struct {
	// Name is the adapter instance name. Default: "runninghub".
	Name string

	// BaseURL is the API endpoint. Default: DefaultBaseURL.
	BaseURL string

	// APIKey is the account key sent with every request. Required.
	APIKey string

	// Timeout bounds each HTTP call. Default: 2 minutes.
	Timeout time.Duration

	// Logger is an optional logger for adapter events.
	Logger Logger
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "runninghub"
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
}

// Adapter runs hosted workflows through the provider's task API.
type Adapter struct {
	name   string
	apiKey string
	client *resty.Client
	log    Logger
}

// New creates a cloud adapter with the given configuration.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &Adapter{
		name:   cfg.Name,
		apiKey: cfg.APIKey,
		client: client,
		log:    cfg.Logger,
	}, nil
}

// Factory builds a cloud adapter from a generic backend config.
func Factory(cfg backend.Config) (backend.Adapter, error) {
	return New(Config{
		Name:    cfg.Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
	})
}

// Close releases the underlying HTTP client.
func (a *Adapter) Close() error { return a.client.Close() }

// Kind returns the adapter's execution model.
func (a *Adapter) Kind() backend.Kind { return backend.KindCloud }

// Name returns the adapter instance name.
func (a *Adapter) Name() string { return a.name }

// envelope is the provider's uniform response shape.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call posts a JSON body to endpoint and decodes the envelope's data
// payload into out when out is non-nil.
func (a *Adapter) call(ctx context.Context, endpoint string, body any, out any) error {
	var env envelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("runninghub: %s: %w", endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("runninghub: %s: status %d", endpoint, resp.StatusCode())
	}
	if env.Code != 0 {
		return &APIError{Endpoint: endpoint, Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("runninghub: %s: decode data: %w", endpoint, err)
		}
	}
	return nil
}

func decodeData(env envelope, out any) error {
	if len(env.Data) == 0 {
		return errors.New("runninghub: empty data payload")
	}
	return json.Unmarshal(env.Data, out)
}

type nodeInfo struct {
	NodeID     string `json:"nodeId"`
	FieldName  string `json:"fieldName"`
	FieldValue any    `json:"fieldValue"`
}

// Submit creates a task for the submission's hosted workflow, sending the
// bound values as per-node field overrides.
func (a *Adapter) Submit(ctx context.Context, sub backend.Submission) (backend.Handle, error) {
	if sub.RemoteID == "" {
		return backend.Handle{}, ErrWorkflowIDRequired
	}

	infos := make([]nodeInfo, 0, len(sub.Bindings))
	for _, b := range sub.Bindings {
		infos = append(infos, nodeInfo{NodeID: b.NodeID, FieldName: b.Field, FieldValue: b.Value})
	}

	var data struct {
		TaskID     string `json:"taskId"`
		ClientID   string `json:"clientId"`
		TaskStatus string `json:"taskStatus"`
	}
	body := map[string]any{
		"apiKey":       a.apiKey,
		"workflowId":   sub.RemoteID,
		"nodeInfoList": infos,
	}
	if err := a.call(ctx, "/task/openapi/create", body, &data); err != nil {
		return backend.Handle{}, err
	}
	if data.TaskID == "" {
		return backend.Handle{}, fmt.Errorf("runninghub: create returned no task id")
	}
	a.log.Info("task created", "task_id", data.TaskID, "workflow_id", sub.RemoteID)
	return backend.Handle{ID: data.TaskID, Adapter: a.name}, nil
}

// Poll queries the task's current status.
func (a *Adapter) Poll(ctx context.Context, h backend.Handle) (backend.Status, error) {
	var raw string
	body := map[string]any{"apiKey": a.apiKey, "taskId": h.ID}
	if err := a.call(ctx, "/task/openapi/status", body, &raw); err != nil {
		return "", err
	}
	st, err := mapStatus(raw)
	if err != nil {
		return "", err
	}
	if st == backend.StatusFailed {
		return st, &backend.ExecutionError{Handle: h, Message: "task reported FAILED"}
	}
	return st, nil
}

// mapStatus translates the provider's status vocabulary.
func mapStatus(raw string) (backend.Status, error) {
	switch strings.ToUpper(raw) {
	case "QUEUED", "CREATED":
		return backend.StatusPending, nil
	case "RUNNING":
		return backend.StatusRunning, nil
	case "SUCCESS":
		return backend.StatusSucceeded, nil
	case "FAILED":
		return backend.StatusFailed, nil
	default:
		return "", fmt.Errorf("runninghub: unknown task status %q", raw)
	}
}

type outputItem struct {
	FileURL      string `json:"fileUrl"`
	FileType     string `json:"fileType"`
	NodeID       string `json:"nodeId"`
	TaskCostTime any    `json:"taskCostTime"`
	Text         string `json:"text"`
}

// FetchOutput retrieves the task's output files, grouped by the producing
// node where the provider reports one.
func (a *Adapter) FetchOutput(ctx context.Context, h backend.Handle) (backend.Artifacts, error) {
	var items []outputItem
	body := map[string]any{"apiKey": a.apiKey, "taskId": h.ID}
	if err := a.call(ctx, "/task/openapi/outputs", body, &items); err != nil {
		return nil, err
	}

	arts := make(backend.Artifacts)
	for _, it := range items {
		key := it.NodeID
		if key == "" {
			key = "output"
		}
		no := arts[key]
		switch {
		case it.Text != "":
			no.Texts = append(no.Texts, it.Text)
		case it.FileURL != "":
			no.AddMediaNamed(fileName(it.FileURL), it.FileURL)
		}
		arts[key] = no
	}
	return arts, nil
}

// Cancel asks the provider to stop the task. Already-terminal tasks are
// reported as success.
func (a *Adapter) Cancel(ctx context.Context, h backend.Handle) error {
	body := map[string]any{"apiKey": a.apiKey, "taskId": h.ID}
	err := a.call(ctx, "/task/openapi/cancel", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		a.log.Warn("cancel declined", "task_id", h.ID, "code", apiErr.Code, "msg", apiErr.Msg)
		return nil
	}
	return err
}

// WorkflowJSON downloads the graph of a hosted workflow, for compiling a
// hosted template locally.
func (a *Adapter) WorkflowJSON(ctx context.Context, workflowID string) ([]byte, error) {
	var data struct {
		Prompt string `json:"prompt"`
	}
	body := map[string]any{"apiKey": a.apiKey, "workflowId": workflowID}
	if err := a.call(ctx, "/api/openapi/getJsonApiFormat", body, &data); err != nil {
		return nil, err
	}
	if data.Prompt == "" {
		return nil, fmt.Errorf("runninghub: workflow %s has no graph", workflowID)
	}
	return []byte(data.Prompt), nil
}

// fileName extracts the artifact filename from a provider URL, for media
// classification.
func fileName(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return path.Base(u.Path)
}

var _ backend.Adapter = (*Adapter)(nil)
