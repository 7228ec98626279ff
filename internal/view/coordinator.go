// Package view holds the layout model a renderer projects: one tile per
// session, at most one pinned tile, and the grid geometry. It never owns
// streams, it only records which stream a tile is bound to.
package view

import (
	"math"
	"sync"

	"github.com/mossy-p/meet-signaling/internal/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrUnknownTile = errors.New("no tile for key")

// Tile is the view of one session.
type Tile struct {
	Key      models.SessionKey
	StreamID string
	Label    string
	// Hidden is set while the tile is shown enlarged instead of in the grid.
	Hidden bool
}

// Layout is the grid geometry for the visible tiles.
type Layout struct {
	Rows int
	Cols int
}

// Snapshot is a copy of the full view state.
type Snapshot struct {
	Pinned  *Tile
	Grid    []Tile
	Sidebar []Tile
	Layout  Layout
}

type Coordinator struct {
	mu     sync.Mutex
	tiles  map[models.SessionKey]*Tile
	order  []models.SessionKey
	pinned *models.SessionKey
	log    logrus.FieldLogger
}

func NewCoordinator(log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		tiles: make(map[models.SessionKey]*Tile),
		log:   log.WithField("component", "view"),
	}
}

// Add creates the tile for key, or rebinds an existing one to streamID.
func (c *Coordinator) Add(key models.SessionKey, streamID, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tiles[key]; ok {
		t.StreamID = streamID
		if label != "" {
			t.Label = label
		}
		return
	}

	c.tiles[key] = &Tile{Key: key, StreamID: streamID, Label: label}
	c.order = append(c.order, key)
}

// Remove drops the tile for key. Removing the pinned tile unpins first;
// the return value reports whether that happened.
func (c *Coordinator) Remove(key models.SessionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tiles[key]; !ok {
		return false
	}

	unpinned := false
	if c.pinned != nil && *c.pinned == key {
		c.unpinLocked()
		unpinned = true
		c.log.WithField("tile", key.String()).Debug("pinned tile removed, unpinning")
	}

	delete(c.tiles, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return unpinned
}

// RemovePeer drops every tile of peerID across both planes.
func (c *Coordinator) RemovePeer(peerID string) bool {
	unpinned := false
	for _, key := range []models.SessionKey{models.CameraKey(peerID), models.ScreenKey(peerID)} {
		if c.Remove(key) {
			unpinned = true
		}
	}
	return unpinned
}

func (c *Coordinator) Has(key models.SessionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tiles[key]
	return ok
}

// Pin enlarges key. A previously pinned tile goes back to normal first.
func (c *Coordinator) Pin(key models.SessionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tiles[key]
	if !ok {
		return errors.Wrapf(ErrUnknownTile, "pin %s", key)
	}
	if c.pinned != nil && *c.pinned == key {
		return nil
	}

	c.unpinLocked()
	t.Hidden = true
	c.pinned = &key
	return nil
}

func (c *Coordinator) Unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unpinLocked()
}

func (c *Coordinator) unpinLocked() {
	if c.pinned == nil {
		return
	}
	if t, ok := c.tiles[*c.pinned]; ok {
		t.Hidden = false
	}
	c.pinned = nil
}

// Pinned returns the pinned key, if any.
func (c *Coordinator) Pinned() (models.SessionKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned == nil {
		return models.SessionKey{}, false
	}
	return *c.pinned, true
}

// Grid returns the tiles laid out in the grid. It is empty while a tile is
// pinned, since every other tile moves to the sidebar.
func (c *Coordinator) Grid() []Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gridLocked()
}

func (c *Coordinator) gridLocked() []Tile {
	if c.pinned != nil {
		return nil
	}
	return c.visibleLocked()
}

// Sidebar returns the compact list shown next to a pinned tile.
func (c *Coordinator) Sidebar() []Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sidebarLocked()
}

func (c *Coordinator) sidebarLocked() []Tile {
	if c.pinned == nil {
		return nil
	}
	return c.visibleLocked()
}

func (c *Coordinator) visibleLocked() []Tile {
	var out []Tile
	for _, key := range c.order {
		t := c.tiles[key]
		if t.Hidden {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// Layout computes rows and columns for the current grid.
func (c *Coordinator) Layout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GridLayout(len(c.gridLocked()))
}

// GridLayout returns the geometry for n tiles: ceil(sqrt(n)) columns and
// as many rows as needed.
func GridLayout(n int) Layout {
	if n <= 0 {
		return Layout{}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return Layout{Rows: rows, Cols: cols}
}

// Relabel sets the labels of peerID's tiles from its display name.
func (c *Coordinator) Relabel(peerID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tiles[models.CameraKey(peerID)]; ok {
		t.Label = name
	}
	if t, ok := c.tiles[models.ScreenKey(peerID)]; ok {
		t.Label = ScreenLabel(name)
	}
}

func ScreenLabel(name string) string {
	return "Screen: " + name
}

// Label returns the current label of key's tile.
func (c *Coordinator) Label(key models.SessionKey) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tiles[key]; ok {
		return t.Label
	}
	return ""
}

// Reconcile unhides tiles of live sessions that are hidden without being
// pinned, and drops a pin whose tile is gone. It returns the number of
// tiles it had to fix.
func (c *Coordinator) Reconcile(live []models.SessionKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pinned != nil {
		if _, ok := c.tiles[*c.pinned]; !ok {
			c.pinned = nil
		}
	}

	fixed := 0
	for _, key := range live {
		t, ok := c.tiles[key]
		if !ok || !t.Hidden {
			continue
		}
		if c.pinned != nil && *c.pinned == key {
			continue
		}
		t.Hidden = false
		fixed++
	}
	if fixed > 0 {
		c.log.WithField("fixed", fixed).Warn("reconciled hidden tiles")
	}
	return fixed
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Grid:    c.gridLocked(),
		Sidebar: c.sidebarLocked(),
	}
	if c.pinned != nil {
		t := *c.tiles[*c.pinned]
		s.Pinned = &t
	}
	s.Layout = GridLayout(len(s.Grid))
	return s
}

// Reset clears every tile and the pin.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiles = make(map[models.SessionKey]*Tile)
	c.order = nil
	c.pinned = nil
}
