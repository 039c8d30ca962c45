// Package policy holds the per-uplink category assignment: the last value the
// backend confirmed and the value the operator asked for while it is pending.
package policy

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/model"
)

var (
	ErrUnknownInterface = errors.New("unknown interface")
	ErrInvalidCategory  = errors.New("invalid category")
	// ErrNoChange is returned when an intent asks for the category the entry already has.
	ErrNoChange = errors.New("category unchanged")
)

// Entry is one uplink. A zero PendingSince means the entry is confirmed and
// Local equals LastKnown.
type Entry struct {
	Name         string
	LastKnown    model.Category
	Local        model.Category
	PendingSince time.Time
	Up           bool
	IP           string
	Proto        string

	seq int
}

func (e Entry) Pending() bool {
	return !e.PendingSince.IsZero()
}

// State is the store's owned data. It is only touched through Store.
type State struct {
	entries map[string]*Entry
	nextSeq int
	loaded  bool
}

func NewState() *State {
	return &State{entries: make(map[string]*Entry)}
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state *State
}

func NewStore() *Store {
	return &Store{state: NewState()}
}

// ApplyIntent moves name to category as an optimistic local write and returns
// the full assignment to submit. Moving an uplink to Primary demotes the
// current Primary to Bonded in the same update, and both stay pending until the
// backend confirms them.
func (s *Store) ApplyIntent(name string, category model.Category, now time.Time) (model.PolicyAssignment, error) {
	if !category.Valid() {
		return model.PolicyAssignment{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.state.entries[name]
	if !ok {
		return model.PolicyAssignment{}, fmt.Errorf("%w: %s", ErrUnknownInterface, name)
	}
	if target.Local == category {
		return model.PolicyAssignment{}, ErrNoChange
	}

	if category == model.CategoryPrimary {
		for _, e := range s.sortedLocked() {
			if e.Name != name && e.Local == model.CategoryPrimary {
				s.moveLocked(e, model.CategoryBonded, now)
			}
		}
	}
	s.moveLocked(target, category, now)

	return s.assignmentLocked(), nil
}

func (s *Store) moveLocked(e *Entry, category model.Category, now time.Time) {
	e.Local = category
	e.PendingSince = now
	s.state.nextSeq++
	e.seq = s.state.nextSeq
}

// MergeAuthoritative applies a backend fetch and returns how many entries are
// still pending. Confirmed entries take the backend value. A pending entry
// clears once the backend reports its local category and otherwise keeps its
// local value. Entries the backend no longer reports are dropped.
func (s *Store) MergeAuthoritative(list []model.WANInterface) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(list))
	for i, iface := range list {
		if iface.Name == "" {
			continue
		}
		seen[iface.Name] = struct{}{}
		category := iface.Multipath
		if !category.Valid() {
			category = model.CategoryDisabled
		}

		e, ok := s.state.entries[iface.Name]
		if !ok {
			e = &Entry{Name: iface.Name, Local: category}
			s.state.entries[iface.Name] = e
		}
		e.LastKnown = category
		e.Up, e.IP, e.Proto = iface.Up, iface.IP, iface.Proto

		switch {
		case !e.Pending():
			e.Local = category
			e.seq = i
		case e.Local == category:
			e.PendingSince = time.Time{}
			e.seq = i
		}
	}
	for name := range s.state.entries {
		if _, ok := seen[name]; !ok {
			delete(s.state.entries, name)
		}
	}
	s.state.nextSeq = max(s.state.nextSeq, len(list))
	s.state.loaded = true

	return s.pendingLocked()
}

// Rollback reverts every pending entry to its last confirmed category.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.entries {
		if e.Pending() {
			e.Local = e.LastKnown
			e.PendingSince = time.Time{}
		}
	}
}

// ExpirePending drops every pending marker and keeps the local categories.
// It returns how many markers were dropped.
func (s *Store) ExpirePending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.state.entries {
		if e.Pending() {
			e.PendingSince = time.Time{}
			n++
		}
	}
	return n
}

func (s *Store) HasPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingLocked() > 0
}

// Loaded reports whether at least one backend fetch has been merged.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.loaded
}

// Entries returns copies ordered by local category, then position.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := s.sortedLocked()
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = *e
	}
	return out
}

func (s *Store) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Assignment is the full local assignment in submit order.
func (s *Store) Assignment() model.PolicyAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignmentLocked()
}

// Groups renders the entries as one group per category, Primary first.
func (s *Store) Groups() []model.PolicyGroup {
	entries := s.Entries()
	groups := make([]model.PolicyGroup, 0, len(model.Categories))
	for _, c := range model.Categories {
		g := model.PolicyGroup{Category: c, Label: c.Label(), Interfaces: []model.PolicyRow{}}
		for _, e := range entries {
			if e.Local != c {
				continue
			}
			row := model.PolicyRow{
				Name:      e.Name,
				Category:  e.Local,
				LastKnown: e.LastKnown,
				Pending:   e.Pending(),
				Up:        e.Up,
				IP:        e.IP,
				Proto:     e.Proto,
			}
			if e.Pending() {
				since := e.PendingSince
				row.PendingSince = &since
			}
			g.Interfaces = append(g.Interfaces, row)
		}
		groups = append(groups, g)
	}
	return groups
}

func (s *Store) assignmentLocked() model.PolicyAssignment {
	sorted := s.sortedLocked()
	a := model.PolicyAssignment{
		Order: make([]string, 0, len(sorted)),
		Modes: make(map[string]model.Category, len(sorted)),
	}
	for _, e := range sorted {
		a.Order = append(a.Order, e.Name)
		a.Modes[e.Name] = e.Local
	}
	return a
}

func (s *Store) sortedLocked() []*Entry {
	out := make([]*Entry, 0, len(s.state.entries))
	for _, e := range s.state.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		return cmp.Or(
			cmp.Compare(a.Local.Rank(), b.Local.Rank()),
			cmp.Compare(a.seq, b.seq),
			strings.Compare(a.Name, b.Name),
		)
	})
	return out
}

func (s *Store) pendingLocked() int {
	n := 0
	for _, e := range s.state.entries {
		if e.Pending() {
			n++
		}
	}
	return n
}
