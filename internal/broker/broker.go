package broker

import (
	"log/slog"
	"sync"
)

// Conn is the broker's view of a signaling connection. Send must not block:
// implementations enqueue onto a bounded per-connection buffer and fail fast
// when the peer cannot keep up.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Broker is the combined connection and room registry. A single mutex guards
// both maps so every join/leave/teardown is atomic with respect to fan-out
// membership snapshots.
type Broker struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[string]Conn
	// subs is the per-connection membership record; rooms is the inverse
	// mapping used for fan-out. The two are mutated together under mu.
	subs  map[string]map[string]struct{}
	rooms map[string]map[string]Conn
}

func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		log:   logger,
		conns: make(map[string]Conn),
		subs:  make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]Conn),
	}
}

// Register adds a connection with an empty membership record.
func (b *Broker) Register(c Conn) {
	b.mu.Lock()
	b.conns[c.ID()] = c
	b.subs[c.ID()] = make(map[string]struct{})
	total := len(b.conns)
	b.mu.Unlock()

	b.log.Debug("connection registered", "conn", c.ID(), "connections", total)
}

// Subscribe joins the connection to a room, creating the room if absent.
// Subscribing twice to the same room is a no-op, as is subscribing on a
// connection that has already been torn down.
func (b *Broker) Subscribe(c Conn, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	memberships, ok := b.subs[c.ID()]
	if !ok {
		return
	}
	if _, joined := memberships[room]; joined {
		return
	}
	memberships[room] = struct{}{}

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		b.rooms[room] = members
	}
	members[c.ID()] = c

	b.log.Debug("subscribed", "conn", c.ID(), "room", room, "members", len(members))
}

// Unsubscribe removes the connection from a room. Leaving a room that was
// never joined is a no-op.
func (b *Broker) Unsubscribe(c Conn, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if memberships, ok := b.subs[c.ID()]; ok {
		delete(memberships, room)
	}
	b.leaveLocked(room, c.ID())
}

// Teardown removes the connection from every room it joined and discards its
// record. Safe to call more than once; only the first call has any effect.
func (b *Broker) Teardown(c Conn) {
	b.mu.Lock()
	memberships, ok := b.subs[c.ID()]
	if !ok {
		b.mu.Unlock()
		return
	}
	for room := range memberships {
		b.leaveLocked(room, c.ID())
	}
	delete(b.subs, c.ID())
	delete(b.conns, c.ID())
	total := len(b.conns)
	b.mu.Unlock()

	b.log.Debug("connection torn down", "conn", c.ID(), "connections", total)
}

// leaveLocked removes a member from a room and deletes the room when it
// becomes empty. Caller holds b.mu.
func (b *Broker) leaveLocked(room, connID string) {
	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.rooms, room)
		b.log.Debug("room removed", "room", room)
	}
}

// Broadcast delivers payload to every member of room except the sender.
// Membership is snapshotted under the lock and delivery happens outside it,
// so a recipient joining or leaving mid-broadcast does not affect this
// fan-out. A failed send is logged and skipped; it never aborts delivery to
// the remaining members. Publishing to a room that does not exist is a no-op.
func (b *Broker) Broadcast(room string, sender Conn, payload []byte) (delivered, failed int) {
	b.mu.Lock()
	members := b.rooms[room]
	recipients := make([]Conn, 0, len(members))
	for id, member := range members {
		if sender != nil && id == sender.ID() {
			continue
		}
		recipients = append(recipients, member)
	}
	b.mu.Unlock()

	for _, recipient := range recipients {
		if err := recipient.Send(payload); err != nil {
			b.log.Warn("broadcast delivery failed", "room", room, "conn", recipient.ID(), "error", err)
			failed++
			continue
		}
		delivered++
	}
	return delivered, failed
}

// Counts reports the current number of rooms and connections.
func (b *Broker) Counts() (rooms, connections int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms), len(b.conns)
}
