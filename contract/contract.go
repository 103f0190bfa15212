//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the registry's view of one live client session.
// Consume addresses the transport's outbound stream; Close tears it down.
type Connection interface {
	EventSink
	ID() chat.ConnectionID
	Close() error
}

type RegistryStats struct {
	Connections int
	Channels    int
}

type IRegistry interface {
	Join(conn Connection, channelID chat.ChannelID)
	Leave(conn Connection, channelID chat.ChannelID)
	LeaveAll(conn Connection) error
	MembersOf(channelID chat.ChannelID) []Connection
	Stats() RegistryStats
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, channelID chat.ChannelID, e event.DomainEvent) int
}
