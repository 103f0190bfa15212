// Package chat contains the core concepts of the relay: participants,
// the channel shared by two of them and the messages they exchange.
// No runtime, network or storage logic belongs here.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UserID identifies a participant. Uniqueness is guaranteed by the caller.
// Clients may send it as a JSON number or a JSON string.
type UserID string

func (u UserID) String() string { return string(u) }

// integer reports whether the id is a canonical base-10 integer ("7", "-3", not "07").
func (u UserID) integer() (int64, bool) {
	n, err := strconv.ParseInt(string(u), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(u) {
		return 0, false
	}
	return n, true
}

// Compare orders ids: integers numerically, integers before other ids,
// other ids lexicographically.
func (u UserID) Compare(other UserID) int {
	a, aInt := u.integer()
	b, bInt := other.integer()
	switch {
	case aInt && bInt:
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case aInt:
		return -1
	case bInt:
		return 1
	}
	return strings.Compare(string(u), string(other))
}

func (u *UserID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or a number, got %s", b)
	}
	*u = UserID(n.String())
	return nil
}

// MarshalJSON writes canonical integers as numbers so that clients
// comparing ids numerically keep working.
func (u UserID) MarshalJSON() ([]byte, error) {
	if _, ok := u.integer(); ok {
		return []byte(u), nil
	}
	return json.Marshal(string(u))
}
