// Package directory keeps the in-memory roster of every room: who is in it
// and under which display name. Nothing here outlives the process.
package directory

import "sync"

// NameEntry is one participant's last known display name.
type NameEntry struct {
	UserID string
	Name   string
}

type room struct {
	order []string // member ids in join order
	names map[string]string
}

// Directory maps room id to members and their display names.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func New() *Directory {
	return &Directory{rooms: make(map[string]*room)}
}

// Join registers id as a member, creating the room entry on first use.
func (d *Directory) Join(roomID, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		r = &room{names: make(map[string]string)}
		d.rooms[roomID] = r
	}
	for _, m := range r.order {
		if m == id {
			return
		}
	}
	r.order = append(r.order, id)
}

// RecordName upserts id's display name. Names for non-members are dropped
// so a late message can never resurrect a room.
func (d *Directory) RecordName(roomID, id, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok || !r.has(id) {
		return false
	}
	r.names[id] = name
	return true
}

// Leave removes id and deletes the room once its last member is gone.
func (d *Directory) Leave(roomID, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(r.names, id)
	for i, m := range r.order {
		if m == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.order) == 0 {
		delete(d.rooms, roomID)
	}
}

// Snapshot returns every recorded name in the room, in join order.
func (d *Directory) Snapshot(roomID string) []NameEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	entries := make([]NameEntry, 0, len(r.names))
	for _, id := range r.order {
		if name, ok := r.names[id]; ok {
			entries = append(entries, NameEntry{UserID: id, Name: name})
		}
	}
	return entries
}

// Members returns the number of participants currently in the room.
func (d *Directory) Members(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.rooms[roomID]; ok {
		return len(r.order)
	}
	return 0
}

// Exists reports whether the room currently has an entry.
func (d *Directory) Exists(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.rooms[roomID]
	return ok
}

// Rooms returns the number of live rooms.
func (d *Directory) Rooms() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (r *room) has(id string) bool {
	for _, m := range r.order {
		if m == id {
			return true
		}
	}
	return false
}
