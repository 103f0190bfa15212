package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var sampleIDs = []UserID{"1", "3", "7", "10", "-2", "42", "alice", "bob", "Bob", "07", "3a", "ümit"}

func TestDeriveChannel_Commutative(t *testing.T) {
	req := require.New(t)
	for _, a := range sampleIDs {
		for _, b := range sampleIDs {
			req.Equal(DeriveChannel(a, b), DeriveChannel(b, a), "pair (%s, %s)", a, b)
		}
	}
}

func TestDeriveChannel_InjectiveOverUnorderedPairs(t *testing.T) {
	req := require.New(t)
	seen := make(map[ChannelID][2]UserID)
	for i, a := range sampleIDs {
		for _, b := range sampleIDs[i:] {
			ch := DeriveChannel(a, b)
			if previous, ok := seen[ch]; ok {
				req.Failf("collision", "%v and (%s, %s) both map to %s", previous, a, b, ch)
			}
			seen[ch] = [2]UserID{a, b}
		}
	}
}

func TestDeriveChannel_Scenarios(t *testing.T) {
	req := require.New(t)

	// Given user 3 joins with target 7 and user 7 joins with target 3
	// Then both resolve to the same channel
	req.Equal(ChannelID("3_7"), DeriveChannel("3", "7"))
	req.Equal(ChannelID("3_7"), DeriveChannel("7", "3"))

	// Integers are ordered numerically, not lexicographically
	req.Equal(ChannelID("3_10"), DeriveChannel("10", "3"))

	// Self chat is a valid channel
	req.Equal(ChannelID("5_5"), DeriveChannel("5", "5"))

	// Non canonical integers are plain strings and sort after integers
	req.Equal(ChannelID("7_07"), DeriveChannel("07", "7"))
	req.Equal(ChannelID("42_alice"), DeriveChannel("alice", "42"))
}

func TestChannelID_Participants(t *testing.T) {
	req := require.New(t)
	ch := DeriveChannel("bob", "alice")

	low, high, ok := ch.Participants()
	req.True(ok)
	req.Equal(UserID("alice"), low)
	req.Equal(UserID("bob"), high)
	req.True(ch.Includes("bob"))
	req.False(ch.Includes("carol"))

	_, _, ok = ChannelID("broken").Participants()
	req.False(ok)
}

func TestUserID_JSON(t *testing.T) {
	req := require.New(t)

	var payload struct {
		From UserID `json:"from"`
		To   UserID `json:"to"`
	}
	// Given browser clients send numeric ids
	req.NoError(json.Unmarshal([]byte(`{"from":3,"to":"alice"}`), &payload))
	req.Equal(UserID("3"), payload.From)
	req.Equal(UserID("alice"), payload.To)

	// Then integers are written back as numbers
	out, err := json.Marshal(payload)
	req.NoError(err)
	req.JSONEq(`{"from":3,"to":"alice"}`, string(out))

	// Wrong typed ids are rejected
	req.Error(json.Unmarshal([]byte(`{"from":true}`), &payload))
	req.Error(json.Unmarshal([]byte(`{"from":{"id":3}}`), &payload))
}
