package editor

import (
	"context"
	"fmt"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

const (
	sampleTargetText = "注釈"
	sampleType       = "注釈の種類"
	sampleContent    = "注釈の内容"
)

// SampleText is the placeholder source text of page n
func SampleText(n int) string {
	return fmt.Sprintf("ページ %d の本文です。内容を追加してください。", n)
}

// SampleTranslation is the placeholder translation of page n
func SampleTranslation(n int) string {
	return fmt.Sprintf("ページ%dの日本語訳です。内容を追加してください。", n)
}

// SampleAnnotations is the placeholder annotation list of an empty page
func SampleAnnotations() []types.Annotation {
	return []types.Annotation{{
		TargetText: sampleTargetText,
		Type:       sampleType,
		Content:    sampleContent,
	}}
}

// backfill returns a copy of pages with every empty field replaced by its
// placeholder. Pages without an id get their 1-based position.
func backfill(pages []types.Page) []types.Page {
	out := make([]types.Page, len(pages))
	for i, p := range pages {
		if p.ID == 0 {
			p.ID = i + 1
		}
		if p.Text == "" {
			p.Text = SampleText(p.ID)
		}
		if p.JPTranslation == "" {
			p.JPTranslation = SampleTranslation(p.ID)
		}
		if len(p.Annotations) == 0 {
			p.Annotations = SampleAnnotations()
		}
		out[i] = p
	}
	return out
}

// ensurePages returns a backfilled copy of pages holding at least total
// entries, appending synthetic pages numbered after the existing ones.
func ensurePages(pages []types.Page, total int) []types.Page {
	out := make([]types.Page, len(pages), max(len(pages), total))
	copy(out, pages)
	for n := len(pages) + 1; n <= total; n++ {
		out = append(out, types.Page{ID: n})
	}
	if added := total - len(pages); added > 0 {
		logger.Info("synthesized missing pages", logger.Int("existing", len(pages)), logger.Int("added", added))
	}
	return backfill(out)
}

// Load fetches the document. Pages sent by the API are backfilled right
// away; when none were sent, pages are synthesized once the viewer's page
// count is known. On failure an error is notified and the previous state is
// kept. A response that arrives after Close is dropped.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.NewAppError(types.ErrNotLoaded, "session is closed", nil)
	}
	s.loading = true
	started := effects{changed: true}
	s.capture(&started)
	s.mu.Unlock()
	s.dispatch(started)

	logger.Info("loading document", logger.String("doc", s.id))
	doc, err := s.store.GetDocument(ctx, s.id)

	var fx effects
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Debug("discarding document response for closed session", logger.String("doc", s.id))
		return nil
	}
	s.loading = false
	fx.changed = true
	if err != nil {
		fx.notify(notifyLoadFailed)
		s.capture(&fx)
		s.mu.Unlock()
		logger.Error("failed to load document", err, logger.String("doc", s.id))
		s.dispatch(fx)
		return err
	}

	loaded := *doc
	if loaded.ID == "" {
		loaded.ID = types.DocumentID(s.id)
	}
	if loaded.Thumbnails == nil {
		loaded.Thumbnails = []types.Thumbnail{}
	}
	switch {
	case s.totalPages > 0:
		loaded.Pages = ensurePages(loaded.Pages, s.totalPages)
	case len(loaded.Pages) > 0:
		loaded.Pages = backfill(loaded.Pages)
	default:
		// wait for the viewer's page count
		loaded.Pages = []types.Page{}
	}
	s.doc = &loaded
	s.clampToPages(&fx)
	pageCount := len(loaded.Pages)
	s.capture(&fx)
	s.mu.Unlock()

	logger.Info("document loaded",
		logger.String("doc", s.id),
		logger.String("title", loaded.Title),
		logger.Int("pages", pageCount))
	s.dispatch(fx)
	return nil
}
