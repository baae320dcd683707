package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/tracing"
)

// Control routes on the launcher listener
const (
	statusPath       = "/status"
	sessionPath      = "/session"
	desktopReadyPath = "/session/desktop-ready"
	exitDesktopPath  = "/session/exit-desktop"
)

// HeaderRequestID matches the inbound middleware header
const HeaderRequestID = "X-Request-ID"

// ErrQueued reports that the launcher accepted a request but will act on it
// once its current transition finishes
var ErrQueued = errors.New("launcher queued the request")

// Config configures a Client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	Logger     *zap.Logger
}

// Client calls the launcher. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a launcher client
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	r := resty.New()
	r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	r.SetTimeout(cfg.Timeout)
	r.SetRetryCount(cfg.RetryCount)
	r.SetRetryWaitTime(200 * time.Millisecond)
	r.SetHeader("Accept", "application/json")
	r.JSONMarshal = sonic.Marshal
	r.JSONUnmarshal = sonic.Unmarshal

	return &Client{
		http:   r,
		logger: cfg.Logger.Named("launcher"),
	}
}

// Status is the launcher's /status answer
type Status struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SessionState is the subset of the launcher's /session answer the agent reads
type SessionState struct {
	Session             string `json:"session"`
	ShouldTerminatePeer bool   `json:"shouldTerminatePeer"`
	Transitions         uint64 `json:"transitions"`
}

type exitRequest struct {
	TerminatePeer bool `json:"terminatePeer"`
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	req.SetHeader(HeaderRequestID, uuid.NewString())
	tracing.Inject(ctx, req.Header)
	return req
}

// Status checks that the launcher is listening
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	resp, err := c.request(ctx).SetResult(&out).Get(statusPath)
	if err := check("status", resp, err); err != nil {
		return Status{}, err
	}
	return out, nil
}

// Session returns the launcher's current session state
func (c *Client) Session(ctx context.Context) (SessionState, error) {
	var out SessionState
	resp, err := c.request(ctx).SetResult(&out).Get(sessionPath)
	if err := check("session", resp, err); err != nil {
		return SessionState{}, err
	}
	return out, nil
}

// DesktopReady tells the launcher the desktop session has taken the screen
func (c *Client) DesktopReady(ctx context.Context) error {
	resp, err := c.request(ctx).Post(desktopReadyPath)
	if err := check("desktop-ready", resp, err); err != nil {
		return err
	}
	c.logger.Debug("reported desktop ready")
	return nil
}

// ExitDesktop asks the launcher to hand the screen back to the browser.
// ErrQueued is returned when the launcher is mid-transition.
func (c *Client) ExitDesktop(ctx context.Context, terminatePeer bool) error {
	resp, err := c.request(ctx).
		SetBody(exitRequest{TerminatePeer: terminatePeer}).
		Post(exitDesktopPath)
	if err := check("exit-desktop", resp, err); err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusAccepted {
		return ErrQueued
	}
	c.logger.Info("requested desktop exit", zap.Bool("terminate_peer", terminatePeer))
	return nil
}

// Error is a failed launcher call
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("launcher %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("launcher %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if body == "" {
			body = http.StatusText(resp.StatusCode())
		}
		return &Error{Op: op, StatusCode: resp.StatusCode(), Err: errors.New(body)}
	}
	return nil
}
