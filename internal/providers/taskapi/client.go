package taskapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Remote endpoints, relative to the base URL
const (
	loginPath = "/auth/login"
	tasksPath = "/tasks"
)

// HeaderRequestID carries a per-call id for correlating with server logs
const HeaderRequestID = "X-Request-ID"

// Config configures a Client
type Config struct {
	BaseURL         string
	LoginType       string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	RetryCount      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	RateLimit       float64 // requests per second; 0 disables limiting
	UserAgent       string
	Logger          *zap.Logger
}

// Client talks to the remote task API. It is safe for concurrent use.
type Client struct {
	http            *resty.Client
	limiter         *rate.Limiter
	breaker         *resilience.Breaker
	loginType       string
	downloadTimeout time.Duration
	logger          *zap.Logger
	now             func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
}

// NewClient creates a remote task API client
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 250 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}
	if cfg.LoginType == "" {
		cfg.LoginType = "user"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "clouddesk/1.0"
	}
	logger := cfg.Logger.Named("taskapi")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryCount
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveledLogger{s: logger.Sugar()}
	retryClient.ErrorHandler = keepLastResponse

	r := resty.NewWithClient(retryClient.StandardClient())
	r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("User-Agent", cfg.UserAgent)
	r.SetHeader("Accept", "application/json")
	r.JSONMarshal = sonic.Marshal
	r.JSONUnmarshal = sonic.Unmarshal

	limit := rate.Inf
	burst := 0
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	c := &Client{
		http:            r,
		limiter:         rate.NewLimiter(limit, burst),
		loginType:       cfg.LoginType,
		downloadTimeout: cfg.DownloadTimeout,
		logger:          logger,
		now:             time.Now,
	}
	c.breaker = resilience.New("task-api", resilience.Settings{
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || clientSide(err)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// keepLastResponse hands the final response to resty once retries are spent
// so callers see the real status code
func keepLastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// Breaker exposes the circuit guarding the API
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Token returns the current bearer credential, or nil
func (c *Client) Token() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HasToken reports whether a non-expired bearer credential is held
func (c *Client) HasToken() bool {
	return c.Token().Valid()
}

// ClearToken forgets the bearer credential
func (c *Client) ClearToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// request returns a rate-limited request carrying trace and request ids
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := c.http.R().SetContext(ctx)
	req.SetHeader(HeaderRequestID, uuid.NewString())
	tracing.Inject(ctx, req.Header)
	return req, nil
}

// authorized is request plus the bearer header
func (c *Client) authorized(ctx context.Context) (*resty.Request, error) {
	tok := c.Token()
	if !tok.Valid() {
		return nil, &AuthenticationError{Err: ErrNoToken}
	}
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	req.SetHeader("Authorization", tok.Type()+" "+tok.AccessToken)
	return req, nil
}

// tokenResponse is the login answer
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate exchanges operator credentials for a bearer token
func (c *Client) Authenticate(ctx context.Context, creds types.Credentials) (*oauth2.Token, error) {
	if !creds.Valid() {
		return nil, &AuthenticationError{Err: fmt.Errorf("username and password are required")}
	}

	tok, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*oauth2.Token, error) {
		req, err := c.request(ctx)
		if err != nil {
			return nil, &AuthenticationError{Err: err}
		}
		var body tokenResponse
		resp, err := req.
			SetFormData(map[string]string{
				"login_type": c.loginType,
				"username":   creds.Username,
				"password":   creds.Password,
				"grant_type": "password",
			}).
			SetResult(&body).
			Post(loginPath)
		if err != nil {
			return nil, &AuthenticationError{Err: err}
		}
		if resp.IsError() {
			return nil, &AuthenticationError{StatusCode: resp.StatusCode(), Err: errorBody(resp)}
		}
		if body.AccessToken == "" {
			return nil, &AuthenticationError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("response carried no access_token")}
		}

		tok := &oauth2.Token{
			AccessToken: body.AccessToken,
			TokenType:   body.TokenType,
		}
		if body.ExpiresIn > 0 {
			tok.Expiry = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
		}
		return tok, nil
	})
	if err != nil {
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) {
			err = &AuthenticationError{Err: err}
		}
		c.logger.Warn("authentication failed", zap.String("username", creds.Username), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	c.logger.Info("authenticated", zap.String("username", creds.Username), zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// check converts a transport error or non-2xx response into a
// RemoteFetchError. A 401 also drops the token.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &RemoteFetchError{Op: op, Err: err}
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnauthorized {
			c.ClearToken()
			return &AuthenticationError{StatusCode: resp.StatusCode(), Err: errorBody(resp)}
		}
		return &RemoteFetchError{Op: op, StatusCode: resp.StatusCode(), Err: errorBody(resp)}
	}
	return nil
}

func errorBody(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return errors.New(body)
}
