package editor

import (
	"context"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

// Save sends the whole page array to the API. A response message is
// notified as success; any failure is notified as an error. The session
// state is never changed by saving, and there is no retry.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.doc == nil {
		s.mu.Unlock()
		err := types.NewAppError(types.ErrNotLoaded, "no document loaded", nil)
		logger.Warn("save requested without a document", logger.String("doc", s.id))
		s.dispatch(effects{notes: []types.Notification{notifySaveFailed}})
		return err
	}
	// edits replace the slice, so this one is never written again
	pages := s.doc.Pages
	s.saving = true
	started := effects{changed: true}
	s.capture(&started)
	s.mu.Unlock()
	s.dispatch(started)

	logger.Info("saving document", logger.String("doc", s.id), logger.Int("pages", len(pages)))
	resp, err := s.store.UpdatePages(ctx, s.id, pages)

	var fx effects
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Debug("discarding save response for closed session", logger.String("doc", s.id))
		return err
	}
	s.saving = false
	fx.changed = true
	s.capture(&fx)
	s.mu.Unlock()

	switch {
	case err != nil:
		logger.Error("failed to save document", err, logger.String("doc", s.id))
		fx.notify(notifySaveFailed)
	case resp != nil && resp.Message != "":
		logger.Info("document saved", logger.String("doc", s.id), logger.String("message", resp.Message))
		fx.notify(notifySaved)
	default:
		logger.Warn("save response carried no message", logger.String("doc", s.id))
	}
	s.dispatch(fx)
	return err
}
