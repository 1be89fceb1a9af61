// Package room owns the in-memory registry of rooms and their members.
//
// All mutation goes through Directory, which serializes check-and-insert
// behind one mutex so concurrent creates and joins observe a consistent
// state. A room exists exactly while it has at least one member.
package room

import (
	"errors"
	"sync"
)

var (
	ErrRoomExists    = errors.New("room: room already exists")
	ErrRoomNotFound  = errors.New("room: room not found")
	ErrAlreadyInRoom = errors.New("room: member already in a room")
)

type Directory struct {
	mu       sync.Mutex
	rooms    map[string]map[string]*Member
	memberIn map[string]string // member id -> room id
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:    make(map[string]map[string]*Member),
		memberIn: make(map[string]string),
	}
}

// CreateRoom atomically checks for an existing room and inserts a new one
// containing exactly m. Two racing creates for the same id resolve so one
// succeeds and the other sees ErrRoomExists. The display name is installed
// only on admission, while m is still unpublished; after that Member.Name is
// immutable, so readers on other connections never race a rename. A rejected
// request changes nothing, the name included.
func (d *Directory) CreateRoom(roomID string, m *Member, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.memberIn[m.ID]; ok {
		return ErrAlreadyInRoom
	}
	if _, ok := d.rooms[roomID]; ok {
		return ErrRoomExists
	}
	m.SetName(name)
	d.rooms[roomID] = map[string]*Member{m.ID: m}
	d.memberIn[m.ID] = roomID
	return nil
}

// JoinRoom adds m to an existing room and returns the members present before
// the join, in directory-internal order. Callers must treat the result as a
// set; it doubles as the exactly-once delivery snapshot for the new-peer
// event. Name handling follows CreateRoom: applied on admission only.
func (d *Directory) JoinRoom(roomID string, m *Member, name string) ([]*Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.memberIn[m.ID]; ok {
		return nil, ErrAlreadyInRoom
	}
	members, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	m.SetName(name)
	existing := make([]*Member, 0, len(members))
	for _, other := range members {
		existing = append(existing, other)
	}
	members[m.ID] = m
	d.memberIn[m.ID] = roomID
	return existing, nil
}

// Leave removes m from whatever room it is in and destroys the room if it
// became empty. It reports the room id, the snapshot of remaining members,
// and whether anything was removed. Calling it for a member that is not in a
// room is a no-op, which makes explicit leave and transport teardown safe to
// run in either order.
func (d *Directory) Leave(m *Member) (roomID string, remaining []*Member, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok = d.memberIn[m.ID]
	if !ok {
		return "", nil, false
	}
	delete(d.memberIn, m.ID)

	members := d.rooms[roomID]
	delete(members, m.ID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
		return roomID, nil, true
	}

	remaining = make([]*Member, 0, len(members))
	for _, other := range members {
		remaining = append(remaining, other)
	}
	return roomID, remaining, true
}

// Lookup finds a member of the given room by id.
func (d *Directory) Lookup(roomID, memberID string) (*Member, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.rooms[roomID][memberID]
	return m, ok
}

// MemberRoom reports which room the member currently occupies.
func (d *Directory) MemberRoom(memberID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	roomID, ok := d.memberIn[memberID]
	return roomID, ok
}

// Members returns a snapshot of the room's members, excluding exceptID.
func (d *Directory) Members(roomID, exceptID string) []*Member {
	d.mu.Lock()
	defer d.mu.Unlock()

	members := d.rooms[roomID]
	out := make([]*Member, 0, len(members))
	for id, m := range members {
		if id != exceptID {
			out = append(out, m)
		}
	}
	return out
}

// RoomCount reports the number of live rooms.
func (d *Directory) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}
