package editor

import (
	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

// editCurrentPage replaces the current page with an edited copy. The page
// array and the edited page's annotation list are copied, so every other
// page and every earlier snapshot keep their contents. fn reports whether it
// changed anything; nothing is replaced when it returns false.
func (s *Session) editCurrentPage(fx *effects, fn func(p *types.Page) bool) bool {
	if s.doc == nil {
		return false
	}
	idx := s.currentPage - 1
	if idx < 0 || idx >= len(s.doc.Pages) {
		return false
	}

	page := s.doc.Pages[idx]
	page.Annotations = append([]types.Annotation{}, page.Annotations...)
	if !fn(&page) {
		return false
	}

	pages := make([]types.Page, len(s.doc.Pages))
	copy(pages, s.doc.Pages)
	pages[idx] = page
	s.doc.Pages = pages
	fx.changed = true
	return true
}

// EditText replaces the source text of the current page
func (s *Session) EditText(value string) bool {
	ok := false
	s.update(func(fx *effects) {
		ok = s.editCurrentPage(fx, func(p *types.Page) bool {
			p.Text = value
			return true
		})
	})
	return ok
}

// EditTranslation replaces the Japanese translation of the current page
func (s *Session) EditTranslation(value string) bool {
	ok := false
	s.update(func(fx *effects) {
		ok = s.editCurrentPage(fx, func(p *types.Page) bool {
			p.JPTranslation = value
			return true
		})
	})
	return ok
}

// EditAnnotation sets one field of annotation index on the current page.
// Unknown fields and out-of-range indexes are ignored.
func (s *Session) EditAnnotation(index int, field types.AnnotationField, value string) bool {
	ok := false
	s.update(func(fx *effects) {
		ok = s.editCurrentPage(fx, func(p *types.Page) bool {
			if index < 0 || index >= len(p.Annotations) {
				return false
			}
			a := &p.Annotations[index]
			switch field {
			case types.FieldTargetText:
				a.TargetText = value
			case types.FieldType:
				a.Type = value
			case types.FieldContent:
				a.Content = value
			default:
				logger.Warn("unknown annotation field", logger.String("field", string(field)))
				return false
			}
			return true
		})
	})
	return ok
}

// AddAnnotation appends an empty annotation to the current page and selects
// it. It returns the new index, or NoSelection when there is no current page.
func (s *Session) AddAnnotation() int {
	index := NoSelection
	s.update(func(fx *effects) {
		s.editCurrentPage(fx, func(p *types.Page) bool {
			p.Annotations = append(p.Annotations, types.Annotation{})
			index = len(p.Annotations) - 1
			return true
		})
		if index != NoSelection {
			s.selected = index
		}
	})
	return index
}

// DeleteAnnotation removes annotation index from the current page. The
// selection is cleared whether or not it pointed at the removed entry.
func (s *Session) DeleteAnnotation(index int) bool {
	ok := false
	s.update(func(fx *effects) {
		if s.doc == nil {
			return
		}
		ok = s.editCurrentPage(fx, func(p *types.Page) bool {
			if index < 0 || index >= len(p.Annotations) {
				return false
			}
			p.Annotations = append(p.Annotations[:index], p.Annotations[index+1:]...)
			return true
		})
		s.clearSelection(fx)
	})
	return ok
}

// ToggleAnnotation focuses annotation index, or clears the focus when index
// is already focused. Indexes outside the current page's list are ignored.
func (s *Session) ToggleAnnotation(index int) {
	s.update(func(fx *effects) {
		if s.doc == nil {
			return
		}
		idx := s.currentPage - 1
		if idx < 0 || idx >= len(s.doc.Pages) || index < 0 || index >= len(s.doc.Pages[idx].Annotations) {
			return
		}
		if s.selected == index {
			s.selected = NoSelection
		} else {
			s.selected = index
		}
		fx.changed = true
	})
}
