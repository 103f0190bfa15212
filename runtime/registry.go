package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"fmt"
	"sync"
)

type connectionSet map[chat.ConnectionID]contract.Connection

type channelSet map[chat.ChannelID]struct{}

// Registry tracks which live connections are subscribed to which channels.
// Two indexes are kept in lockstep under a single lock:
// members answers "who is in this channel" for broadcasts,
// channels answers "where is this connection" for disconnect cleanup.
// Empty sets are pruned so the maps never grow with dead entries.
type Registry struct {
	mu       sync.RWMutex
	members  map[chat.ChannelID]connectionSet
	channels map[chat.ConnectionID]channelSet
}

func NewRegistry() *Registry {
	return &Registry{
		members:  make(map[chat.ChannelID]connectionSet),
		channels: make(map[chat.ConnectionID]channelSet),
	}
}

// Join subscribes conn to channelID. Joining twice is a no-op.
func (r *Registry) Join(conn contract.Connection, channelID chat.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, ok := r.members[channelID]; !ok {
		r.members[channelID] = make(connectionSet)
	}
	r.members[channelID][id] = conn

	if _, ok := r.channels[id]; !ok {
		r.channels[id] = make(channelSet)
	}
	r.channels[id][channelID] = struct{}{}
}

// Leave unsubscribes conn from channelID. Leaving a channel never joined is a no-op.
func (r *Registry) Leave(conn contract.Connection, channelID chat.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	r.removeMember(channelID, id)
	if joined, ok := r.channels[id]; ok {
		delete(joined, channelID)
		if len(joined) == 0 {
			delete(r.channels, id)
		}
	}
}

// LeaveAll removes conn from every channel it joined.
// The cleanup always completes; an error is returned when the two indexes disagreed.
func (r *Registry) LeaveAll(conn contract.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	joined, ok := r.channels[id]
	if !ok {
		return nil
	}
	delete(r.channels, id)

	var missing []chat.ChannelID
	for channelID := range joined {
		if !r.removeMember(channelID, id) {
			missing = append(missing, channelID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: connection %s not found in %v", errors.ErrRegistryInconsistency, id, missing)
	}
	return nil
}

// MembersOf returns a snapshot of the connections in channelID.
// The result is safe to iterate while other goroutines mutate the registry.
func (r *Registry) MembersOf(channelID chat.ChannelID) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[channelID]
	if !ok {
		return nil
	}
	snapshot := make([]contract.Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *Registry) Stats() contract.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contract.RegistryStats{
		Connections: len(r.channels),
		Channels:    len(r.members),
	}
}

// removeMember must be called with the write lock held.
func (r *Registry) removeMember(channelID chat.ChannelID, id chat.ConnectionID) bool {
	members, ok := r.members[channelID]
	if !ok {
		return false
	}
	if _, found := members[id]; !found {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.members, channelID)
	}
	return true
}
