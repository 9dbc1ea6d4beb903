package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatehub/internal/config"
	ws "gatehub/internal/microservices/websocket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		GoEnv:          "test",
		WSPort:         8080,
		WSPath:         "/ws",
		UpdateInterval: 5 * time.Millisecond,
		UpdateSteps:    config.DefaultUpdateSteps,
		EchoRateLimit:  10,
		EchoRateBurst:  20,
		ProgressStore:  "none",
		LogLevel:       "info",
		LogFormat:      "text",
		CORSOrigins:    []string{"*"},
	}
}

// ServerTestSuite runs a real HTTP server per test
type ServerTestSuite struct {
	suite.Suite
	cfg    *config.Config
	server *Server
	http   *httptest.Server
}

func (s *ServerTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.start(Deps{})
}

func (s *ServerTestSuite) start(deps Deps) {
	if deps.Emitter == nil {
		deps.Emitter = ws.NewEmitter(ws.StepsFromNames(s.cfg.UpdateSteps, s.cfg.UpdateInterval))
	}
	s.server = New(s.cfg, deps)
	s.http = httptest.NewServer(s.server.Handler())
}

func (s *ServerTestSuite) TearDownTest() {
	s.server.Hub.CloseAll()
	s.http.Close()
}

func (s *ServerTestSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + s.cfg.WSPath
}

func (s *ServerTestSuite) readUpdates(conn *websocket.Conn, n int) []string {
	updates := make([]string, 0, n)
	for len(updates) < n {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, frame, err := conn.ReadMessage()
		s.Require().NoError(err)
		msg, err := ws.Decode(frame)
		s.Require().NoError(err)
		pu, ok := msg.(ws.ProcessUpdate)
		s.Require().True(ok)
		updates = append(updates, pu.Update)
	}
	return updates
}

func (s *ServerTestSuite) TestEndToEnd_ThreeGates() {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.Equal([]string{"complete gate 1", "complete gate 2", "complete gate 3"}, s.readUpdates(conn, 3))
}

func (s *ServerTestSuite) TestConcurrentClientsKeepTheirOwnOrder() {
	const clients = 10
	results := make(chan []string, clients)
	errs := make(chan error, clients)

	for i := 0; i < clients; i++ {
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			var got []string
			for len(got) < 3 {
				conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				_, frame, err := conn.ReadMessage()
				if err != nil {
					errs <- err
					return
				}
				msg, err := ws.Decode(frame)
				if err != nil {
					errs <- err
					return
				}
				got = append(got, msg.(ws.ProcessUpdate).Update)
			}
			results <- got
		}()
	}

	for i := 0; i < clients; i++ {
		select {
		case got := <-results:
			s.Equal(config.DefaultUpdateSteps, got)
		case err := <-errs:
			s.FailNow("client failed", err.Error())
		case <-time.After(5 * time.Second):
			s.FailNow("timed out waiting for clients")
		}
	}
}

func (s *ServerTestSuite) TestHealthz() {
	resp, err := http.Get(s.http.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("ok", body["status"])
}

func (s *ServerTestSuite) TestHealthz_Degraded() {
	s.TearDownTest()
	s.start(Deps{Health: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})

	resp, err := http.Get(s.http.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("degraded", body["status"])
	s.Equal("connection refused", body["dependencies"].(map[string]any)["redis"])
}

func (s *ServerTestSuite) TestRunsWithoutStore() {
	resp, err := http.Get(s.http.URL + "/runs/6f1c0f6e-8a4e-4d1f-9a57-0f8f8a7c2b11")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusNotImplemented, resp.StatusCode)
}

func (s *ServerTestSuite) TestAuthRequiredWhenSecretSet() {
	s.TearDownTest()
	s.cfg.JWTSecret = testSecret
	s.start(Deps{})

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	s.Require().Error(err)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	s.Require().NoError(err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	s.Require().NoError(err)
	defer conn.Close()
	s.Len(s.readUpdates(conn, 1), 1)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestShutdownClosesClients(t *testing.T) {
	cfg := testConfig()
	cfg.UpdateInterval = time.Hour
	srv := New(cfg, Deps{Emitter: ws.NewEmitter(ws.StepsFromNames(cfg.UpdateSteps, cfg.UpdateInterval))})
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// the inner http.Server never started listening, Shutdown still closes the hub
	assert.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.Hub.Count())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
