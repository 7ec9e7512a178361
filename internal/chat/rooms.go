package chat

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultRooms is the room set offered when configuration names none.
var DefaultRooms = []string{"general", "dev", "random"}

// ErrNoRooms is returned when a catalogue would be empty.
var ErrNoRooms = errors.New("room catalogue is empty")

// Catalogue is the fixed, ordered set of rooms a client may select.
type Catalogue struct {
	rooms []string
	def   string
}

// NewCatalogue normalizes rooms (trimmed, lower-cased, de-duplicated, order
// kept) and checks that def is one of them. An empty def selects the first room.
func NewCatalogue(rooms []string, def string) (Catalogue, error) {
	normalized := make([]string, 0, len(rooms))
	for _, room := range rooms {
		room = normalizeRoom(room)
		if room == "" || slices.Contains(normalized, room) {
			continue
		}
		normalized = append(normalized, room)
	}
	if len(normalized) == 0 {
		return Catalogue{}, ErrNoRooms
	}

	def = normalizeRoom(def)
	if def == "" {
		def = normalized[0]
	}
	if !slices.Contains(normalized, def) {
		return Catalogue{}, fmt.Errorf("default room %q is not in %v", def, normalized)
	}
	return Catalogue{rooms: normalized, def: def}, nil
}

// MustCatalogue is NewCatalogue for static room sets.
func MustCatalogue(rooms []string, def string) Catalogue {
	c, err := NewCatalogue(rooms, def)
	if err != nil {
		panic(err)
	}
	return c
}

// Contains reports whether room belongs to the catalogue. Names are matched
// the way NewCatalogue normalizes them, so "Dev" finds "dev".
func (c Catalogue) Contains(room string) bool {
	_, ok := c.Lookup(room)
	return ok
}

// Lookup returns the catalogue's spelling of room.
func (c Catalogue) Lookup(room string) (string, bool) {
	room = normalizeRoom(room)
	if room == "" || !slices.Contains(c.rooms, room) {
		return "", false
	}
	return room, true
}

// Default is the room selected when a session starts.
func (c Catalogue) Default() string {
	return c.def
}

// List returns a copy of the rooms in configured order.
func (c Catalogue) List() []string {
	return slices.Clone(c.rooms)
}

func normalizeRoom(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}
