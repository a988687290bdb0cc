// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package xref maintains the cross-reference table of a PDF file.
//
// The table maps object numbers to file offsets (or object stream
// positions) and generation numbers.  Freed object numbers are kept on a
// free list and reused, oldest first, with an incremented generation
// number.  Free entries are removed from the live table by a garbage
// collection pass, which runs in the background once enough entries have
// been freed.
package xref

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"

	"seehuhn.de/go/pdfscrub/pdf"
)

// Status is the state of a cross-reference entry.
type Status uint8

// These are the possible states of an entry.
const (
	Free Status = iota
	InUse
	Compressed
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case InUse:
		return "in use"
	case Compressed:
		return "compressed"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Entry is one entry of the cross-reference table.
type Entry struct {
	// Offset is the file offset for objects in use, and the object number
	// of the containing object stream for compressed objects.
	Offset uint64

	// Generation is the generation number of the object.  For free
	// entries, this is the generation the number will have when reused.
	Generation uint16

	Status Status

	// Index is the position of a compressed object in its object stream.
	Index uint32

	// Hint is an optional description of the object, e.g. its /Type.
	Hint string
}

// Options control the behaviour of a Manager.
type Options struct {
	// MaxGeneration is the largest generation number which will be
	// assigned.  The default is 65535.
	MaxGeneration uint16

	// GCThreshold is the number of uncollected free entries which triggers
	// a background garbage collection.  The default is 64.  A negative
	// value disables automatic collection.
	GCThreshold int

	// Logger receives diagnostic messages.  The default is slog.Default().
	Logger *slog.Logger
}

// Manager is a concurrency-safe cross-reference table.
type Manager struct {
	maxGen      uint16
	gcThreshold int
	logger      *slog.Logger

	mu        sync.RWMutex
	entries   map[uint32]*Entry
	free      []uint32          // free list, oldest first
	collected map[uint32]uint16 // next generation of collected entries
	exhausted map[uint32]bool   // on the free list, but cannot be reused
	pending   int               // free entries not yet collected
	next      uint32            // smallest number never used

	gcRunning atomic.Bool
	gcDone    sync.WaitGroup
	gcRuns    atomic.Int64
}

// New creates an empty table.  The table contains only the head of the
// free list, object 0 with generation 65535.
func New(opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	m := &Manager{
		maxGen:      opts.MaxGeneration,
		gcThreshold: opts.GCThreshold,
		logger:      opts.Logger,
		entries:     make(map[uint32]*Entry),
		collected:   make(map[uint32]uint16),
		exhausted:   make(map[uint32]bool),
		next:        1,
	}
	if m.maxGen == 0 {
		m.maxGen = 65535
	}
	if m.gcThreshold == 0 {
		m.gcThreshold = 64
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.entries[0] = &Entry{Status: Free, Generation: 65535}
	return m
}

// Load replaces the contents of the table by the entries read from a
// file.  Free entries go onto the free list in order of their object
// number, unless their generation marks them as not reusable.
func (m *Manager) Load(entries map[uint32]pdf.XRefEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.entries)
	clear(m.collected)
	clear(m.exhausted)
	m.free = m.free[:0]
	m.pending = 0
	m.next = 1

	numbers := maps.Keys(entries)
	slices.Sort(numbers)
	for _, number := range numbers {
		e := entries[number]
		entry := &Entry{Generation: e.Generation}
		switch e.Type {
		case pdf.XRefInUse:
			entry.Status = InUse
			entry.Offset = uint64(max(e.Offset, 0))
		case pdf.XRefCompressed:
			entry.Status = Compressed
			entry.Offset = uint64(max(e.Offset, 0))
			entry.Index = e.Index
		default:
			entry.Status = Free
			if number != 0 && e.Generation < 65535 && e.Generation <= m.maxGen {
				m.free = append(m.free, number)
				m.pending++
			}
		}
		m.entries[number] = entry
		if number >= m.next {
			m.next = number + 1
		}
	}
	if _, ok := m.entries[0]; !ok {
		m.entries[0] = &Entry{Status: Free, Generation: 65535}
	}
}

// AddObject allocates an object number for a new object at the given file
// offset.  The oldest number on the free list is reused, with the
// generation number recorded in its free entry.  If the free list is
// empty, the next unused number is allocated with generation 0.
func (m *Manager) AddObject(offset uint64, hint string) (pdf.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.free) > 0 {
		number := m.free[0]
		m.free = m.free[1:]

		if m.exhausted[number] {
			delete(m.exhausted, number)
			return pdf.Reference{}, fmt.Errorf("object %d: %w", number, ErrGenerationExhausted)
		}

		var gen uint16
		if e, ok := m.entries[number]; ok {
			gen = e.Generation
			m.pending--
		} else {
			gen = m.collected[number]
			delete(m.collected, number)
		}
		m.entries[number] = &Entry{
			Offset:     offset,
			Generation: gen,
			Status:     InUse,
			Hint:       hint,
		}
		return pdf.NewReference(number, gen), nil
	}

	if m.next == 0 {
		// all 2^32 numbers are in use
		return pdf.Reference{}, fmt.Errorf("object numbers: %w", ErrGenerationExhausted)
	}
	number := m.next
	m.next++
	m.entries[number] = &Entry{
		Offset: offset,
		Status: InUse,
		Hint:   hint,
	}
	return pdf.NewReference(number, 0), nil
}

// UpdateObject records a new file offset for the object ref.  Compressed
// entries become ordinary in-use entries.  The table is not modified if
// ref is unknown, free, or has a stale generation number.
func (m *Manager) UpdateObject(ref pdf.Reference, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.inUse(ref)
	if err != nil {
		return err
	}
	e.Offset = offset
	e.Status = InUse
	e.Index = 0
	return nil
}

// FreeObject marks the object ref as free and appends its number to the
// free list.  Once more than GCThreshold free entries have accumulated,
// a garbage collection is started in the background.
func (m *Manager) FreeObject(ref pdf.Reference) error {
	m.mu.Lock()
	e, err := m.inUse(ref)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ref.Number == 0 {
		m.mu.Unlock()
		return &UnknownReferenceError{Ref: ref}
	}

	e.Status = Free
	e.Offset = 0
	e.Index = 0
	if ref.Generation >= m.maxGen {
		m.exhausted[ref.Number] = true
		e.Generation = 65535
	} else {
		e.Generation = ref.Generation + 1
	}
	m.free = append(m.free, ref.Number)
	m.pending++
	startGC := m.gcThreshold >= 0 && m.pending > m.gcThreshold
	m.mu.Unlock()

	if startGC && m.gcRunning.CompareAndSwap(false, true) {
		m.gcDone.Add(1)
		go func() {
			defer m.gcDone.Done()
			defer m.gcRunning.Store(false)
			m.Collect()
		}()
	}
	return nil
}

// inUse returns the entry for ref, which must be in use or compressed.
// The caller must hold m.mu.
func (m *Manager) inUse(ref pdf.Reference) (*Entry, error) {
	e, ok := m.entries[ref.Number]
	if !ok || e.Status == Free {
		return nil, &UnknownReferenceError{Ref: ref}
	}
	if e.Generation != ref.Generation {
		return nil, &GenerationMismatchError{Ref: ref, Current: e.Generation}
	}
	return e, nil
}

// Collect removes all free entries, except for object 0, from the live
// table and compacts the free list.  The generation numbers of collected
// entries are retained, so that reused numbers never repeat a
// generation.  Collect returns the number of entries removed.
func (m *Manager) Collect() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for number, e := range m.entries {
		if number == 0 || e.Status != Free {
			continue
		}
		m.collected[number] = e.Generation
		delete(m.entries, number)
		removed++
	}

	seen := make(map[uint32]bool, len(m.free))
	free := m.free[:0]
	for _, number := range m.free {
		if seen[number] {
			continue
		}
		seen[number] = true
		if _, live := m.entries[number]; live {
			// reallocated since it was freed
			continue
		}
		free = append(free, number)
	}
	m.free = free
	m.pending = 0

	m.gcRuns.Add(1)
	m.logger.Debug("xref garbage collection",
		slog.Int("removed", removed),
		slog.Int("free", len(m.free)))
	return removed
}

// Wait blocks until any background garbage collection has finished.
func (m *Manager) Wait() {
	m.gcDone.Wait()
}

// Collections returns the number of garbage collection passes run so far.
func (m *Manager) Collections() int64 {
	return m.gcRuns.Load()
}

// Lookup returns the entry for ref.  An error is returned if the object
// number is unknown or if the generation does not match.
func (m *Manager) Lookup(ref pdf.Reference) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[ref.Number]
	if !ok {
		return Entry{}, &UnknownReferenceError{Ref: ref}
	}
	if e.Status != Free && e.Generation != ref.Generation {
		return Entry{}, &GenerationMismatchError{Ref: ref, Current: e.Generation}
	}
	return *e, nil
}

// Entry returns the entry for the given object number.
func (m *Manager) Entry(number uint32) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[number]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetHint records a description for an object in use.
func (m *Manager) SetHint(ref pdf.Reference, hint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.inUse(ref)
	if err != nil {
		return err
	}
	e.Hint = hint
	return nil
}

// Len returns the number of entries in the live table, including
// object 0.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Size returns the value of the /Size trailer entry, i.e. one more than
// the largest object number ever used.
func (m *Manager) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// Numbers returns the object numbers in the live table, in increasing
// order.
func (m *Manager) Numbers() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNumbers()
}

// InUse returns references to all objects which are in use or
// compressed, in increasing order of object number.
func (m *Manager) InUse() []pdf.Reference {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []pdf.Reference
	for _, number := range m.sortedNumbers() {
		e := m.entries[number]
		if e.Status != Free {
			res = append(res, pdf.NewReference(number, e.Generation))
		}
	}
	return res
}

// Export returns the live table in the form accepted by Load.
func (m *Manager) Export() map[uint32]pdf.XRefEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[uint32]pdf.XRefEntry, len(m.entries))
	for number, e := range m.entries {
		x := pdf.XRefEntry{Generation: e.Generation}
		switch e.Status {
		case InUse:
			x.Type = pdf.XRefInUse
			x.Offset = int64(e.Offset)
		case Compressed:
			x.Type = pdf.XRefCompressed
			x.Offset = int64(e.Offset)
			x.Index = e.Index
		default:
			x.Type = pdf.XRefFree
		}
		res[number] = x
	}
	return res
}

// FreeList returns a copy of the free list, oldest entry first.
func (m *Manager) FreeList() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.free)
}

// sortedNumbers returns the object numbers of the live table in
// increasing order.  The caller must hold m.mu.
func (m *Manager) sortedNumbers() []uint32 {
	numbers := maps.Keys(m.entries)
	slices.Sort(numbers)
	return numbers
}
