package chat

import "strings"

// ChannelSeparator joins the two participants of a channel.
// It is rejected inside a UserID, which keeps DeriveChannel injective.
const ChannelSeparator = "_"

// ChannelID names the conversation between exactly two participants.
// It is never stored on its own: it is always recomputed from the pair.
type ChannelID string

func (c ChannelID) String() string { return string(c) }

// DeriveChannel returns the channel shared by a and b.
// The result only depends on the values, never on the argument order.
// A user paired with itself gets a valid channel.
func DeriveChannel(a, b UserID) ChannelID {
	if a.Compare(b) > 0 {
		a, b = b, a
	}
	return ChannelID(string(a) + ChannelSeparator + string(b))
}

// Participants splits the channel back into its two participants, lowest first.
func (c ChannelID) Participants() (UserID, UserID, bool) {
	low, high, ok := strings.Cut(string(c), ChannelSeparator)
	if !ok || strings.Contains(high, ChannelSeparator) {
		return "", "", false
	}
	return UserID(low), UserID(high), true
}

// Includes reports whether u is one of the two participants.
func (c ChannelID) Includes(u UserID) bool {
	low, high, ok := c.Participants()
	return ok && (low == u || high == u)
}
