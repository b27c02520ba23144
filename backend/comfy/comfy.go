package comfy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"

	"github.com/jonwraymond/flowtool/backend"
)

// Errors for local adapter operations.
var (
	// ErrBaseURLRequired is returned when no service URL is configured.
	ErrBaseURLRequired = errors.New("comfy: BaseURL is required")

	// ErrSubmitFailed is returned when the service rejects a prompt.
	ErrSubmitFailed = errors.New("comfy: submit failed")

	// ErrJobNotTerminal is returned when output is fetched from a job
	// that has not completed.
	ErrJobNotTerminal = errors.New("comfy: job is not terminal")
)

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

// DefaultSlots is the default size of the local execution slot pool.
const DefaultSlots = 4

// Config configures a local queue adapter.
type Config struct {
	// Name is the adapter instance name. Default: "comfy".
	Name string

	// BaseURL is the execution service URL (e.g. http://127.0.0.1:8188).
	// Required.
	BaseURL string

	// APIKey is forwarded in the prompt's extra_data for services that
	// proxy hosted nodes. Optional.
	APIKey string

	// Cookie is a raw Cookie header value sent on HTTP requests and the
	// websocket handshake, for services behind authenticating proxies.
	// Optional.
	Cookie string

	// Slots bounds concurrent executions. Default: DefaultSlots.
	Slots int

	// HTTPClient overrides the HTTP client. Optional.
	HTTPClient *http.Client

	// Dialer overrides the websocket dialer. Optional.
	Dialer *websocket.Dialer

	// Logger is an optional logger for adapter events.
	Logger Logger
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "comfy"
	}
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
}

// Adapter executes bound graphs on a ComfyUI-compatible service.
type Adapter struct {
	name     string
	httpBase string
	wsBase   string
	apiKey   string
	cookie   string
	client   *http.Client
	dialer   *websocket.Dialer
	pool     *ants.Pool
	log      Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates a local queue adapter with the given configuration.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	httpBase, wsBase, err := splitBaseURLs(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("comfy: %w", err)
	}

	pool, err := ants.NewPool(cfg.Slots)
	if err != nil {
		return nil, fmt.Errorf("comfy: %w", err)
	}

	return &Adapter{
		name:     cfg.Name,
		httpBase: httpBase,
		wsBase:   wsBase,
		apiKey:   cfg.APIKey,
		cookie:   cfg.Cookie,
		client:   cfg.HTTPClient,
		dialer:   cfg.Dialer,
		pool:     pool,
		log:      cfg.Logger,
		jobs:     make(map[string]*job),
	}, nil
}

// Factory builds a local adapter from a generic backend config. Options:
// "slots" (int), "cookie".
func Factory(cfg backend.Config) (backend.Adapter, error) {
	c := Config{
		Name:    cfg.Name,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Cookie:  cfg.Options["cookie"],
	}
	if s := cfg.Options["slots"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("comfy: invalid slots %q", s)
		}
		c.Slots = n
	}
	return New(c)
}

// splitBaseURLs derives the HTTP and websocket bases from one service URL.
func splitBaseURLs(base string) (httpBase, wsBase string, err error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", "", err
	}
	httpURL := *u
	wsURL := *u
	switch u.Scheme {
	case "https", "wss":
		httpURL.Scheme = "https"
		wsURL.Scheme = "wss"
	default:
		httpURL.Scheme = "http"
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"
	return httpURL.String(), wsURL.String(), nil
}

// Kind returns the adapter's execution model.
func (a *Adapter) Kind() backend.Kind { return backend.KindLocal }

// Name returns the adapter instance name.
func (a *Adapter) Name() string { return a.name }

// Submit queues a bound graph for execution. The call blocks while all
// execution slots are busy; queued submissions start FIFO as slots free.
// It returns once the service has acknowledged the prompt.
func (a *Adapter) Submit(ctx context.Context, sub backend.Submission) (backend.Handle, error) {
	if sub.Workflow == nil {
		return backend.Handle{}, fmt.Errorf("%w: no workflow", ErrSubmitFailed)
	}

	j := newJob(sub.Workflow)
	queued := make(chan error, 1)

	go func() {
		if err := a.pool.Submit(func() { a.runJob(j, queued) }); err != nil {
			queued <- fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}()

	select {
	case err := <-queued:
		if err != nil {
			j.cancel()
			return backend.Handle{}, err
		}
	case <-ctx.Done():
		j.cancel()
		return backend.Handle{}, ctx.Err()
	}

	a.mu.Lock()
	a.jobs[j.promptID] = j
	a.mu.Unlock()

	a.log.Info("prompt queued", "prompt_id", j.promptID)
	return backend.Handle{ID: j.promptID, Adapter: a.name}, nil
}

// Poll reports the job's current status.
func (a *Adapter) Poll(_ context.Context, h backend.Handle) (backend.Status, error) {
	j, err := a.job(h)
	if err != nil {
		return "", err
	}
	st, execErr := j.state()
	if st == backend.StatusFailed && execErr != nil {
		return st, execErr
	}
	return st, nil
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (a *Adapter) Wait(ctx context.Context, h backend.Handle) (backend.Status, error) {
	j, err := a.job(h)
	if err != nil {
		return "", err
	}
	select {
	case <-j.done:
		st, execErr := j.state()
		if execErr != nil {
			return st, execErr
		}
		return st, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// FetchOutput returns the artifacts collected from the completed job and
// releases its tracking entry; later calls with the same handle report
// [backend.ErrUnknownHandle].
func (a *Adapter) FetchOutput(_ context.Context, h backend.Handle) (backend.Artifacts, error) {
	j, err := a.job(h)
	if err != nil {
		return nil, err
	}
	st, _ := j.state()
	if !st.Terminal() {
		return nil, ErrJobNotTerminal
	}
	arts := j.collected()
	a.mu.Lock()
	delete(a.jobs, h.ID)
	a.mu.Unlock()
	return arts, nil
}

// Release drops the tracking entry of a terminal job whose output will
// never be fetched, e.g. after a failure. Releasing an in-flight or
// unknown handle is an error.
func (a *Adapter) Release(h backend.Handle) error {
	j, err := a.job(h)
	if err != nil {
		return err
	}
	if st, _ := j.state(); !st.Terminal() {
		return ErrJobNotTerminal
	}
	a.mu.Lock()
	delete(a.jobs, h.ID)
	a.mu.Unlock()
	return nil
}

// Cancel interrupts an in-flight job: the stream context is torn down and
// a best-effort interrupt is sent to the service. Terminal jobs are
// unaffected.
func (a *Adapter) Cancel(ctx context.Context, h backend.Handle) error {
	j, err := a.job(h)
	if err != nil {
		return err
	}
	if st, _ := j.state(); st.Terminal() {
		return nil
	}
	j.markCancelled()
	j.cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.httpBase+"/interrupt", nil)
	if err != nil {
		return err
	}
	a.setHeaders(req)
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn("interrupt request failed", "error", err)
		return nil
	}
	defer resp.Body.Close()
	return nil
}

// Close releases the slot pool and cancels any in-flight jobs.
func (a *Adapter) Close() error {
	a.mu.Lock()
	for _, j := range a.jobs {
		j.cancel()
	}
	a.mu.Unlock()
	a.pool.Release()
	return nil
}

func (a *Adapter) job(h backend.Handle) (*job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[h.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownHandle, h.ID)
	}
	return j, nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	if a.cookie != "" {
		req.Header.Set("Cookie", a.cookie)
	}
}

var _ backend.Adapter = (*Adapter)(nil)
var _ backend.Waiter = (*Adapter)(nil)
