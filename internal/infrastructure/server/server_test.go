package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/config"
)

const roleSelection = `{
	"user_id": "u-7",
	"username": "operator",
	"selected_role": {"role_id": 3, "role_name": "Technician"},
	"credentials": {"username": "operator", "password": "pw"}
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Mailbox.Dir = t.TempDir()
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false
	cfg.Supervisor.SearchRoots = []string{t.TempDir()}
	cfg.Executables = config.ExecutablesConfig{
		Browser:    []string{"no_such_browser"},
		Desktop:    []string{"no_such_desktop"},
		Transition: []string{"no_such_transition"},
	}
	return cfg
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLauncherRoutes(t *testing.T) {
	l, err := NewLauncher(testConfig(t))
	require.NoError(t, err)
	defer l.Close()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"status", http.MethodGet, "/status", "", http.StatusOK},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"session state", http.MethodGet, "/session", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"log level", http.MethodGet, "/log/level", "", http.StatusOK},
		{"upload", http.MethodPost, "/upload", roleSelection, http.StatusOK},
		{"upload rejects non-json", http.MethodPost, "/upload", "plain words", http.StatusBadRequest},
		{"exit desktop from browser", http.MethodPost, "/session/exit-desktop", "", http.StatusConflict},
		{"agent routes are absent", http.MethodGet, "/tasks", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(l.Handler(), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	doc, err := l.Store().Read()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.False(t, doc.Normalized)
}

func TestLauncherSessionStateBody(t *testing.T) {
	l, err := NewLauncher(testConfig(t))
	require.NoError(t, err)
	defer l.Close()

	w := do(l.Handler(), http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st handoff.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, handoff.BrowserActive, st.Session)
	assert.False(t, st.BrowserLaunched)
}

func TestLauncherServeStopsOnCancel(t *testing.T) {
	l, err := NewLauncher(testConfig(t))
	require.NoError(t, err)
	defer l.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, handoff.Exiting, l.Controller().State().Session)
}

func TestLauncherQuitOverHTTP(t *testing.T) {
	l, err := NewLauncher(testConfig(t))
	require.NoError(t, err)
	defer l.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background(), ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/session/quit", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after quit")
	}
}

func TestParseExitMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ExitMode
		wantErr bool
	}{
		{"", ExitSilently, false},
		{"terminate", ExitTerminate, false},
		{" KEEP ", ExitKeep, false},
		{"later", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExitMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeLauncher records the control calls an agent makes
type fakeLauncher struct {
	mu      sync.Mutex
	session string
	calls   []string
	exits   []bool
}

func (f *fakeLauncher) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, "session")
		session := f.session
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"session": session})
	})
	mux.HandleFunc("/session/desktop-ready", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, "desktop-ready")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	mux.HandleFunc("/session/exit-desktop", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TerminatePeer bool `json:"terminatePeer"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.calls = append(f.calls, "exit-desktop")
		f.exits = append(f.exits, body.TerminatePeer)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	return mux
}

func (f *fakeLauncher) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func agentConfig(t *testing.T, launcherURL string) *config.Config {
	cfg := testConfig(t)
	cfg.Agent.LauncherURL = launcherURL
	cfg.Remote.BaseURL = "http://127.0.0.1:1/api"
	cfg.Remote.RetryCount = 0
	return cfg
}

func TestAgentRoutes(t *testing.T) {
	fake := &fakeLauncher{session: "DesktopActive"}
	ls := httptest.NewServer(fake.handler())
	defer ls.Close()

	a, err := NewAgent(agentConfig(t, ls.URL), AgentOptions{})
	require.NoError(t, err)
	defer a.Close()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"tasks snapshot", http.MethodGet, "/tasks", http.StatusOK},
		{"get-tasks", http.MethodGet, "/get-tasks", http.StatusOK},
		{"advance", http.MethodPost, "/tasks/advance", http.StatusOK},
		{"session proxied", http.MethodGet, "/session", http.StatusOK},
		{"exit proxied", http.MethodPost, "/session/exit-desktop", http.StatusOK},
		{"no upload on the agent", http.MethodPost, "/upload", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(a.Handler(), tt.method, tt.path, "")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := do(a.Handler(), http.MethodGet, "/session", "")
	var st handoff.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, handoff.DesktopActive, st.Session)
	assert.True(t, fake.called("exit-desktop"))
}

func TestAgentReportsReadyAndExitMode(t *testing.T) {
	fake := &fakeLauncher{session: "DesktopActive"}
	ls := httptest.NewServer(fake.handler())
	defer ls.Close()

	a, err := NewAgent(agentConfig(t, ls.URL), AgentOptions{ExitMode: ExitKeep})
	require.NoError(t, err)
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return fake.called("desktop-ready") }, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []bool{false}, fake.exits)
}

func TestAgentExitsQuietlyWhenLauncherMovedOn(t *testing.T) {
	fake := &fakeLauncher{session: "TransitioningToBrowser"}
	ls := httptest.NewServer(fake.handler())
	defer ls.Close()

	a, err := NewAgent(agentConfig(t, ls.URL), AgentOptions{ExitMode: ExitTerminate})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a.stop(ctx, true)
	cancel()

	assert.True(t, fake.called("session"))
	assert.False(t, fake.called("exit-desktop"))
}
