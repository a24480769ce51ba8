// Package editor holds the annotation editor session: the loaded document,
// the editor/viewer page coordinates and the annotation focus slot.
//
// A Session is safe for concurrent use. State transitions are serialized by
// a mutex, and no network call or outbound command runs while it is held.
package editor

import (
	"context"
	"sync"

	"classics-portal/internal/api"
	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

// NoSelection is the selected-annotation index when nothing is focused
const NoSelection = -1

// Store reads and replaces documents on the portal API
type Store interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	UpdatePages(ctx context.Context, id string, pages []types.Page) (*api.UpdateResponse, error)
}

// Viewer is the command side of the embedded PDF widget
type Viewer interface {
	// JumpToPage shows the 0-based page
	JumpToPage(page int)
	// Zoom sets the zoom level, 1 being 100%
	Zoom(level float64)
}

// Notifier shows transient messages to the user
type Notifier interface {
	Notify(n types.Notification)
}

// Listener is called with a fresh snapshot after every state change
type Listener func(State)

var (
	notifyLoadFailed = types.Notification{Title: "エラー", Description: "文書の取得に失敗しました", Variant: types.VariantDestructive}
	notifySaved      = types.Notification{Title: "成功", Description: "保存しました", Variant: types.VariantDefault}
	notifySaveFailed = types.Notification{Title: "エラー", Description: "保存に失敗しました", Variant: types.VariantDestructive}
)

// State is a snapshot of a session. Pages are copies and may be kept by the caller.
type State struct {
	DocumentID         string            `json:"documentId"`
	Title              string            `json:"title"`
	Type               int               `json:"type"`
	IsPDF              bool              `json:"isPdf"`
	Loaded             bool              `json:"loaded"`
	Loading            bool              `json:"loading"`
	Saving             bool              `json:"saving"`
	CurrentPage        int               `json:"currentPage"`
	PDFCurrentPage     int               `json:"pdfCurrentPage"`
	TotalPages         int               `json:"totalPages"`
	SelectedAnnotation *int              `json:"selectedAnnotation"`
	Zoom               float64           `json:"zoom"`
	Page               *types.Page       `json:"page"`
	Pages              []types.Page      `json:"pages"`
	Thumbnails         []types.Thumbnail `json:"thumbnails"`
	CanGoBack          bool              `json:"canGoBack"`
	CanGoForward       bool              `json:"canGoForward"`
}

// Session is the editor state of one open document
type Session struct {
	id       string
	store    Store
	viewer   Viewer
	notifier Notifier
	listener Listener

	mu             sync.Mutex
	doc            *types.Document
	currentPage    int
	pdfCurrentPage int
	totalPages     int
	selected       int
	zoom           float64
	loading        bool
	saving         bool
	closed         bool
	seq            uint64

	deliverMu sync.Mutex
	delivered uint64
}

// Option configures a Session
type Option func(*Session)

// WithViewer attaches the PDF viewer that receives jump and zoom commands
func WithViewer(v Viewer) Option {
	return func(s *Session) { s.viewer = v }
}

// WithNotifier attaches the sink for user notifications
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithListener registers a callback run after every state change.
// Snapshots reach it in transition order; one superseded by a newer snapshot
// before delivery is skipped. The listener must not start a transition itself.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// NewSession creates a session for document id. Nothing is fetched until Load.
func NewSession(id string, store Store, opts ...Option) *Session {
	s := &Session{
		id:          id,
		store:       store,
		currentPage: 1,
		selected:    NoSelection,
		zoom:        1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the document identifier of the session
func (s *Session) ID() string {
	return s.id
}

// Close detaches the session. Responses still in flight are discarded and
// further operations are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		logger.Debug("editor session closed", logger.String("doc", s.id))
	}
}

// State returns a snapshot of the session
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Pages returns a copy of the current page array, nil before load
func (s *Session) Pages() []types.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	return clonePages(s.doc.Pages)
}

// Document returns a copy of the loaded document, nil before load
func (s *Session) Document() *types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	doc := *s.doc
	doc.Pages = clonePages(s.doc.Pages)
	doc.Thumbnails = append([]types.Thumbnail(nil), s.doc.Thumbnails...)
	return &doc
}

// Selected returns the focused annotation index or NoSelection
func (s *Session) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) snapshot() State {
	st := State{
		DocumentID:     s.id,
		Loading:        s.loading,
		Saving:         s.saving,
		CurrentPage:    s.currentPage,
		PDFCurrentPage: s.pdfCurrentPage,
		TotalPages:     s.totalPages,
		Zoom:           s.zoom,
		CanGoBack:      s.pdfCurrentPage > 0,
		CanGoForward:   s.pdfCurrentPage < s.totalPages-1,
	}
	if s.selected != NoSelection {
		sel := s.selected
		st.SelectedAnnotation = &sel
	}
	if s.doc != nil {
		st.Loaded = true
		st.Title = s.doc.Title
		st.Type = s.doc.Type
		st.IsPDF = s.doc.IsPDF()
		st.Pages = clonePages(s.doc.Pages)
		st.Thumbnails = append([]types.Thumbnail{}, s.doc.Thumbnails...)
		if idx := s.currentPage - 1; idx >= 0 && idx < len(st.Pages) {
			page := st.Pages[idx]
			st.Page = &page
		}
	}
	return st
}

// effects collects the outbound commands of one transition. They run after
// the lock is released.
type effects struct {
	jump    *int
	zoom    *float64
	notes   []types.Notification
	changed bool
	state   *State
	seq     uint64
}

func (fx *effects) notify(n types.Notification) {
	fx.notes = append(fx.notes, n)
}

// capture records the snapshot of a changed transition. The lock must be held.
func (s *Session) capture(fx *effects) {
	if !fx.changed || s.listener == nil {
		return
	}
	st := s.snapshot()
	s.seq++
	fx.state = &st
	fx.seq = s.seq
}

func (s *Session) dispatch(fx effects) {
	if fx.jump != nil && s.viewer != nil {
		s.viewer.JumpToPage(*fx.jump)
	}
	if fx.zoom != nil && s.viewer != nil {
		s.viewer.Zoom(*fx.zoom)
	}
	if s.notifier != nil {
		for _, n := range fx.notes {
			s.notifier.Notify(n)
		}
	}
	if fx.state != nil {
		s.deliverMu.Lock()
		if fx.seq > s.delivered {
			s.delivered = fx.seq
			s.listener(*fx.state)
		}
		s.deliverMu.Unlock()
	}
}

// update runs fn under the lock and dispatches its effects afterwards.
// fn is skipped once the session is closed.
func (s *Session) update(fn func(fx *effects)) {
	var fx effects
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(&fx)
	s.capture(&fx)
	s.mu.Unlock()
	s.dispatch(fx)
}

func clonePages(pages []types.Page) []types.Page {
	if pages == nil {
		return nil
	}
	out := make([]types.Page, len(pages))
	for i, p := range pages {
		out[i] = p
		if p.Annotations != nil {
			out[i].Annotations = append([]types.Annotation{}, p.Annotations...)
		}
	}
	return out
}
