package planapi

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hicann/launchargs/pkg/argbuf"
)

type layoutRecord struct {
	View   LayoutView
	Layout *argbuf.Layout
}

// LayoutStore keeps compiled layouts in memory.
type LayoutStore struct {
	mu      sync.Mutex
	layouts map[string]*layoutRecord
}

func NewLayoutStore() *LayoutStore {
	return &LayoutStore{
		layouts: make(map[string]*layoutRecord),
	}
}

func newLayoutID() string {
	return "layout_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Save stores l and returns its view with a fresh ID.
func (s *LayoutStore) Save(name string, l *argbuf.Layout, now time.Time) LayoutView {
	view := NewLayoutView(name, l)
	view.ID = newLayoutID()
	view.CreatedAt = now.Unix()

	s.mu.Lock()
	s.layouts[view.ID] = &layoutRecord{View: view, Layout: l}
	s.mu.Unlock()
	return view
}

func (s *LayoutStore) Get(id string) (*layoutRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.layouts[id]
	return rec, ok
}

func (s *LayoutStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layouts[id]; !ok {
		return false
	}
	delete(s.layouts, id)
	return true
}

// List returns every stored view, oldest first.
func (s *LayoutStore) List() []LayoutView {
	s.mu.Lock()
	out := make([]LayoutView, 0, len(s.layouts))
	for _, rec := range s.layouts {
		out = append(out, rec.View)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b LayoutView) int {
		if n := cmp.Compare(a.CreatedAt, b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
