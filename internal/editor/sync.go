package editor

import (
	"classics-portal/internal/logger"
)

// toViewerPage converts a 1-based editor page to the viewer's 0-based page.
// It and toEditorPage are the only places the offset is applied.
func toViewerPage(editorPage int) int {
	return editorPage - 1
}

// toEditorPage converts a 0-based viewer page to the 1-based editor page
func toEditorPage(viewerPage int) int {
	return viewerPage + 1
}

// setViewerPage moves pdfCurrentPage and queues a jump when it changed
func (s *Session) setViewerPage(fx *effects, page int) {
	if page == s.pdfCurrentPage {
		return
	}
	s.pdfCurrentPage = page
	jump := page
	fx.jump = &jump
	fx.changed = true
}

func (s *Session) clearSelection(fx *effects) {
	if s.selected != NoSelection {
		s.selected = NoSelection
		fx.changed = true
	}
}

// Seed sets the initial page from a 1-based external argument, such as the
// page of a search hit. Values below 1 seed the first page. The viewer is
// always told to jump to the seeded page. A seed past the last page is
// pulled back to it once the document's pages are known.
func (s *Session) Seed(page int) {
	if page < 1 {
		page = 1
	}
	s.update(func(fx *effects) {
		s.currentPage = page
		s.pdfCurrentPage = toViewerPage(page)
		jump := s.pdfCurrentPage
		fx.jump = &jump
		fx.changed = true
	})
}

// HandlePageChange moves to 1-based page n from the editor controls.
// Requests outside 1..len(pages) are ignored and report false.
func (s *Session) HandlePageChange(n int) bool {
	moved := false
	s.update(func(fx *effects) {
		if s.doc == nil || n < 1 || n > len(s.doc.Pages) {
			logger.Debug("ignoring out-of-range page change", logger.String("doc", s.id), logger.Int("page", n))
			return
		}
		if s.currentPage != n {
			s.currentPage = n
			fx.changed = true
		}
		s.setViewerPage(fx, toViewerPage(n))
		s.clearSelection(fx)
		moved = true
	})
	return moved
}

// HandlePdfPageChange records a 0-based page change reported by the viewer
func (s *Session) HandlePdfPageChange(n int) {
	s.update(func(fx *effects) {
		s.viewerPageChange(fx, n)
	})
}

func (s *Session) viewerPageChange(fx *effects, n int) {
	if n < 0 {
		return
	}
	s.setViewerPage(fx, n)
	if page := toEditorPage(n); s.currentPage != page {
		s.currentPage = page
		fx.changed = true
	}
	s.clearSelection(fx)
}

// HandleDocumentLoad records the page count reported by the viewer's load
// callback and synthesizes missing pages once a document is present.
func (s *Session) HandleDocumentLoad(total int) {
	if total <= 0 {
		return
	}
	s.update(func(fx *effects) {
		if s.totalPages == total {
			return
		}
		s.totalPages = total
		fx.changed = true
		logger.Info("viewer reported page count", logger.String("doc", s.id), logger.Int("totalPages", total))
		if s.doc != nil {
			s.doc.Pages = ensurePages(s.doc.Pages, total)
			s.clampToPages(fx)
		}
	})
}

// clampToPages moves a current page beyond the page array onto its last page
func (s *Session) clampToPages(fx *effects) {
	last := len(s.doc.Pages)
	if last == 0 || s.currentPage <= last {
		return
	}
	logger.Debug("clamping page past the end", logger.String("doc", s.id), logger.Int("page", s.currentPage), logger.Int("last", last))
	s.currentPage = last
	s.setViewerPage(fx, toViewerPage(last))
	fx.changed = true
}

// First jumps to the first viewer page
func (s *Session) First() bool {
	return s.navigate(func() int { return 0 })
}

// Prev jumps one viewer page back
func (s *Session) Prev() bool {
	return s.navigate(func() int { return s.pdfCurrentPage - 1 })
}

// Next jumps one viewer page forward
func (s *Session) Next() bool {
	return s.navigate(func() int { return s.pdfCurrentPage + 1 })
}

// Last jumps to the last viewer page
func (s *Session) Last() bool {
	return s.navigate(func() int { return s.totalPages - 1 })
}

// navigate routes a toolbar button through the viewer page change. Targets
// outside the viewer's range, or equal to the current page, are disabled
// buttons and do nothing.
func (s *Session) navigate(target func() int) bool {
	moved := false
	s.update(func(fx *effects) {
		n := target()
		if s.totalPages == 0 || n < 0 || n > s.totalPages-1 || n == s.pdfCurrentPage {
			return
		}
		s.viewerPageChange(fx, n)
		moved = true
	})
	return moved
}

// SetZoom forwards a zoom level to the viewer. Non-positive levels are ignored.
func (s *Session) SetZoom(level float64) {
	if level <= 0 {
		return
	}
	s.update(func(fx *effects) {
		s.zoom = level
		z := level
		fx.zoom = &z
		fx.changed = true
	})
}
