package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, no relay to talk to")
	}
}

func (s *BaseRelaySuite) step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Dial opens a websocket as user and closes it at the end of the test.
func (s *BaseRelaySuite) Dial(name string, user string) *websocket.Conn {
	s.step(s.T(), name)
	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws", RawQuery: "user=" + url.QueryEscape(user)}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to relay at "+u.String())
	s.T().Cleanup(func() { _ = ws.Close() })
	return ws
}

func (s *BaseRelaySuite) Send(ws *websocket.Conn, event string, data map[string]any) {
	s.Require().NoError(ws.WriteJSON(map[string]any{"event": event, "data": data}))
}

func (s *BaseRelaySuite) Next(ws *websocket.Conn) Frame {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var frame Frame
	s.Require().NoError(ws.ReadJSON(&frame))
	return frame
}

func (s *BaseRelaySuite) Get(name string, path string) *http.Response {
	s.step(s.T(), name)
	resp, err := http.Get("http://" + s.Config.RelayAddr + path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// WithHealth provides a gRPC health client within a contextual test step
func (s *BaseRelaySuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.HealthAddr == "" {
		s.T().Skip("HEALTH_ADDR not set")
	}
	s.step(s.T(), name)
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to health server at "+s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
