package cart

import (
	"sort"
	"sync"

	"khwaaish/pkg/automation"
)

type Entry struct {
	Product  automation.Product
	Quantity int
	Size     string
}

// Selection maps product keys to quantities. A zero quantity is the same as
// absence: such entries are dropped rather than stored.
type Selection struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

func NewSelection() *Selection {
	return &Selection{entries: make(map[string]*Entry)}
}

func (s *Selection) Increment(p automation.Product) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	e, ok := s.entries[key]
	if !ok {
		e = &Entry{Product: p}
		s.entries[key] = e
		s.order = append(s.order, key)
	}
	e.Quantity++
	return e.Quantity
}

// Decrement floors at zero and forgets the entry when it gets there.
func (s *Selection) Decrement(p automation.Product) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	e.Quantity--
	if e.Quantity > 0 {
		return e.Quantity
	}
	s.removeLocked(key)
	return 0
}

func (s *Selection) Quantity(p automation.Product) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[p.Key()]; ok {
		return e.Quantity
	}
	return 0
}

// SetSize records a size choice for an already selected product.
func (s *Selection) SetSize(p automation.Product, size string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p.Key()]
	if !ok {
		return false
	}
	e.Size = size
	return true
}

// Selected returns entries with quantity > 0 in first-selected order.
func (s *Selection) Selected() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		if e := s.entries[key]; e != nil && e.Quantity > 0 {
			out = append(out, *e)
		}
	}
	return out
}

// Lines converts the selection into add-to-cart lines.
func (s *Selection) Lines() []automation.CartLine {
	selected := s.Selected()
	lines := make([]automation.CartLine, 0, len(selected))
	for _, e := range selected {
		lines = append(lines, automation.CartLine{Product: e.Product, Quantity: e.Quantity, Size: e.Size})
	}
	return lines
}

// BySource groups selected lines by product source, for flows that check out
// on more than one retailer.
func (s *Selection) BySource() map[string][]automation.CartLine {
	out := map[string][]automation.CartLine{}
	for _, line := range s.Lines() {
		out[line.Product.Source] = append(out[line.Product.Source], line)
	}
	return out
}

func (s *Selection) Sources() []string {
	grouped := s.BySource()
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Selection) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) == 0
}

func (s *Selection) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		n += e.Quantity
	}
	return n
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	s.order = nil
}

func (s *Selection) removeLocked(key string) {
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
