package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type ServerTestSuite struct {
	suite.Suite
	brokerErr error
	server    *Server
}

func (s *ServerTestSuite) SetupTest() {
	s.brokerErr = nil
	s.server = NewServer(map[string]Check{
		"database": func(ctx context.Context) error { return nil },
		"broker":   func(ctx context.Context) error { return s.brokerErr },
	}, zap.NewNop())
}

func (s *ServerTestSuite) get(path string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	s.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (s *ServerTestSuite) TestHealth() {
	w, body := s.get("/health")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok", body["status"])
	s.Equal("application/json", w.Header().Get("Content-Type"))
}

func (s *ServerTestSuite) TestReady_AllChecksPass() {
	w, body := s.get("/ready")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ready", body["status"])
}

func (s *ServerTestSuite) TestReady_FailingCheck() {
	s.brokerErr = errors.New("connection closed")

	w, body := s.get("/ready")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("unavailable", body["status"])
	s.Equal(map[string]any{"broker": "connection closed"}, body["failed"])
}

func (s *ServerTestSuite) TestUnknownRoute() {
	w := httptest.NewRecorder()
	s.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *ServerTestSuite) TestRun_StopsOnCancel() {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	addr := l.Addr().String()
	s.Require().NoError(l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.server.Run(ctx, addr) }()

	s.Eventually(func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop")
	}
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
