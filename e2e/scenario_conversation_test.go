package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testConversationSuite struct {
	BaseRelaySuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) TestTwoUsersConverse() {
	// Fresh ids per run so history from previous runs does not interfere
	base := time.Now().UnixNano() % 1_000_000
	alice, bob := fmt.Sprint(base), fmt.Sprint(base+1)
	text := fmt.Sprintf("hello from %s", alice)

	s.Run("Step 0: Relay reports SERVING", func() {
		s.WithHealth("Health check", func(ctx context.Context, client healthpb.HealthClient) {
			resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
			s.Require().NoError(err)
			s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
		})
	})

	aliceWS := s.Dial("Alice connects", alice)
	bobWS := s.Dial("Bob connects", bob)

	s.Run("Step 1: Both join the room", func() {
		s.Send(aliceWS, "join_room", map[string]any{"from": alice, "to": bob})
		s.Require().Equal("joined_room", s.Next(aliceWS).Event)
		s.Send(bobWS, "join_room", map[string]any{"from": bob, "to": alice})
		s.Require().Equal("joined_room", s.Next(bobWS).Event)
	})

	s.Run("Step 2: Both receive the message exactly once", func() {
		s.Send(aliceWS, "send_message", map[string]any{"from": alice, "to": bob, "text": text})
		fromAlice := s.Next(aliceWS)
		fromBob := s.Next(bobWS)
		s.Require().Equal("receive_message", fromAlice.Event)
		s.Require().Equal("receive_message", fromBob.Event)
		s.Require().Equal(text, fromBob.Data["text"])
		s.Require().Equal(fromAlice.Data["id"], fromBob.Data["id"])
	})

	s.Run("Step 3: History has the message", func() {
		resp := s.Get("Fetch history", fmt.Sprintf("/api/messages/%s/%s", bob, alice))
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		var history []map[string]any
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&history))
		s.Require().NotEmpty(history)
		s.Require().Equal(text, history[len(history)-1]["text"])
	})
}
