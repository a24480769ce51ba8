package main

import (
	"context"
	"net/url"
	"sync"

	"classics-portal/internal/api"
	"classics-portal/internal/config"
	"classics-portal/internal/editor"
	"classics-portal/internal/logger"
	"classics-portal/internal/pdf"
	"classics-portal/internal/render"
	"classics-portal/internal/translator"
	"classics-portal/internal/types"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Event names for frontend communication
const (
	// EventViewerJump carries the 0-based page the PDF widget must show
	EventViewerJump = "viewer:jump"
	// EventViewerZoom carries the zoom level for the PDF widget
	EventViewerZoom = "viewer:zoom"
	// EventNotify carries a types.Notification to show as a toast
	EventNotify = "notify"
	// EventState carries an editor.State snapshot after every change
	EventState = "state"
)

var notifySuggestFailed = types.Notification{Title: "エラー", Description: "翻訳案の取得に失敗しました", Variant: types.VariantDestructive}

// App is the main Wails application controller.
// It owns the API client and the editor session of the open document and
// exposes the editor operations to the frontend.
type App struct {
	ctx      context.Context
	config   *config.ConfigManager
	client   *api.Client
	probe    *pdf.Probe
	renderer *render.Renderer

	suggesterMu sync.Mutex
	suggester   *translator.Suggester

	sessionMu sync.RWMutex
	session   *editor.Session

	// isWailsRuntime indicates if the app is running in a Wails environment
	// This is used to safely skip EventsEmit calls during tests and CLI runs
	isWailsRuntime bool
}

// safeEmit safely emits an event to the frontend.
// It only emits events when running in a Wails environment.
func (a *App) safeEmit(eventName string, data ...interface{}) {
	if !a.isWailsRuntime {
		logger.Debug("event emit skipped (not in Wails runtime)",
			logger.String("event", eventName))
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data...)
}

// SetWailsRuntime sets the Wails runtime flag.
// This should be called from main.go when the app is started in Wails mode.
func (a *App) SetWailsRuntime(isWails bool) {
	a.isWailsRuntime = isWails
}

// NewApp creates a new App. Dependencies are set up in startup.
func NewApp() *App {
	return &App{}
}

// NewAppWithConfig creates a new App with a custom config path.
// This is useful for testing or when a specific configuration location is needed.
func NewAppWithConfig(configPath string) (*App, error) {
	configMgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	return &App{config: configMgr}, nil
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	logger.Info("application starting up")

	if a.config == nil {
		configMgr, err := config.NewConfigManager("")
		if err != nil {
			logger.Error("failed to create config manager", err)
			return
		}
		a.config = configMgr
	}

	if err := a.config.Load(); err != nil {
		// Continue with defaults if config load fails
		logger.Warn("failed to load config, using defaults", logger.Err(err))
	}
	logger.GetLogger().SetLevel(a.config.GetLogLevel())

	a.client = api.NewClient(a.config.GetAPIBaseURL(),
		api.WithTimeout(a.config.GetRequestTimeout()),
		api.WithToken(a.config.GetAPIToken()),
		api.WithRateLimit(a.config.GetRequestsPerSecond()))
	a.probe = pdf.NewProbe(a.client, pdf.DefaultCacheExpiration)
	a.renderer = render.New()

	logger.Info("application startup complete",
		logger.String("apiBaseURL", a.client.BaseURL()),
		logger.Bool("signedIn", a.client.Token() != ""))
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	logger.Info("application shutting down")
	a.CloseDocument()
	logger.Info("application shutdown complete")
}

func (a *App) context() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// Notify implements editor.Notifier by forwarding toasts to the frontend
func (a *App) Notify(n types.Notification) {
	logger.Info("notification", logger.String("title", n.Title), logger.String("description", n.Description))
	a.safeEmit(EventNotify, n)
}

// viewerBridge forwards viewer commands to the frontend PDF widget
type viewerBridge struct {
	app *App
}

func (v viewerBridge) JumpToPage(page int) {
	v.app.safeEmit(EventViewerJump, page)
}

func (v viewerBridge) Zoom(level float64) {
	v.app.safeEmit(EventViewerZoom, level)
}

func (a *App) current() *editor.Session {
	a.sessionMu.RLock()
	defer a.sessionMu.RUnlock()
	return a.session
}

// OpenDocument replaces the open document with document id and loads it.
// initialPage is the 1-based page to show first, as given by a search hit.
func (a *App) OpenDocument(id string, initialPage int) (*editor.State, error) {
	s := editor.NewSession(id, a.client,
		editor.WithViewer(viewerBridge{app: a}),
		editor.WithNotifier(a),
		editor.WithListener(func(st editor.State) { a.safeEmit(EventState, st) }))

	a.sessionMu.Lock()
	previous := a.session
	a.session = s
	a.sessionMu.Unlock()
	if previous != nil {
		previous.Close()
	}

	s.Seed(initialPage)
	if err := s.Load(a.context()); err != nil {
		return nil, err
	}
	st := s.State()
	return &st, nil
}

// CloseDocument detaches the open document, dropping any late responses
func (a *App) CloseDocument() {
	a.sessionMu.Lock()
	s := a.session
	a.session = nil
	a.sessionMu.Unlock()
	if s != nil {
		s.Close()
	}
}

// GetState returns the editor state, nil when no document is open
func (a *App) GetState() *editor.State {
	s := a.current()
	if s == nil {
		return nil
	}
	st := s.State()
	return &st
}

// ProbePageCount counts the pages of the open PDF on the Go side and feeds
// the count to the editor as the viewer's load callback would
func (a *App) ProbePageCount() (int, error) {
	s := a.current()
	if s == nil {
		return 0, types.NewAppError(types.ErrNotLoaded, "no document open", nil)
	}
	doc := s.Document()
	if doc == nil {
		return 0, types.NewAppError(types.ErrNotLoaded, "document not loaded", nil)
	}
	n, err := a.probe.PageCount(a.context(), doc.Title)
	if err != nil {
		return 0, err
	}
	s.HandleDocumentLoad(n)
	return n, nil
}

// GoToPage moves the editor to 1-based page n
func (a *App) GoToPage(n int) bool {
	if s := a.current(); s != nil {
		return s.HandlePageChange(n)
	}
	return false
}

// ViewerPageChanged is called by the PDF widget with its 0-based page
func (a *App) ViewerPageChanged(n int) {
	if s := a.current(); s != nil {
		s.HandlePdfPageChange(n)
	}
}

// ViewerDocumentLoaded is called by the PDF widget with the page count
func (a *App) ViewerDocumentLoaded(total int) {
	if s := a.current(); s != nil {
		s.HandleDocumentLoad(total)
	}
}

// FirstPage jumps the viewer to its first page
func (a *App) FirstPage() bool {
	if s := a.current(); s != nil {
		return s.First()
	}
	return false
}

// PrevPage jumps the viewer one page back
func (a *App) PrevPage() bool {
	if s := a.current(); s != nil {
		return s.Prev()
	}
	return false
}

// NextPage jumps the viewer one page forward
func (a *App) NextPage() bool {
	if s := a.current(); s != nil {
		return s.Next()
	}
	return false
}

// LastPage jumps the viewer to its last page
func (a *App) LastPage() bool {
	if s := a.current(); s != nil {
		return s.Last()
	}
	return false
}

// SetZoom sets the viewer zoom level
func (a *App) SetZoom(level float64) {
	if s := a.current(); s != nil {
		s.SetZoom(level)
	}
}

// EditText replaces the current page's source text
func (a *App) EditText(value string) bool {
	if s := a.current(); s != nil {
		return s.EditText(value)
	}
	return false
}

// EditTranslation replaces the current page's translation
func (a *App) EditTranslation(value string) bool {
	if s := a.current(); s != nil {
		return s.EditTranslation(value)
	}
	return false
}

// EditAnnotation sets field ("target_text", "type" or "content") of an annotation on the current page
func (a *App) EditAnnotation(index int, field string, value string) bool {
	if s := a.current(); s != nil {
		return s.EditAnnotation(index, types.AnnotationField(field), value)
	}
	return false
}

// AddAnnotation appends an empty annotation to the current page and focuses it
func (a *App) AddAnnotation() int {
	if s := a.current(); s != nil {
		return s.AddAnnotation()
	}
	return editor.NoSelection
}

// DeleteAnnotation removes an annotation from the current page
func (a *App) DeleteAnnotation(index int) bool {
	if s := a.current(); s != nil {
		return s.DeleteAnnotation(index)
	}
	return false
}

// ToggleAnnotation focuses an annotation or collapses it when already focused
func (a *App) ToggleAnnotation(index int) {
	if s := a.current(); s != nil {
		s.ToggleAnnotation(index)
	}
}

// Save writes every page of the open document back to the API
func (a *App) Save() error {
	s := a.current()
	if s == nil {
		return types.NewAppError(types.ErrNotLoaded, "no document open", nil)
	}
	return s.Save(a.context())
}

// SignIn logs in and keeps the token for later saves
func (a *App) SignIn(email, password string) (*types.User, error) {
	resp, err := a.client.Login(a.context(), email, password)
	if err != nil {
		logger.Warn("sign in failed", logger.String("email", email), logger.Err(err))
		return nil, err
	}
	if err := a.config.SetAPIToken(resp.Token); err != nil {
		logger.Warn("failed to persist API token", logger.Err(err))
	}
	logger.Info("signed in", logger.String("email", email))
	return resp.User, nil
}

// SignOut forgets the stored token
func (a *App) SignOut() error {
	a.client.SetToken("")
	return a.config.SetAPIToken("")
}

// ListDocuments returns the documents on the portal
func (a *App) ListDocuments() ([]types.DocumentSummary, error) {
	return a.client.ListDocuments(a.context())
}

// Search runs a full-text search over the portal
func (a *App) Search(keyword string) ([]types.SearchResult, error) {
	return a.client.Search(a.context(), keyword)
}

// SearchHits runs a search and flattens it into per-page hits that can be
// passed to OpenDocument
func (a *App) SearchHits(keyword string) ([]api.Hit, error) {
	results, err := a.Search(keyword)
	if err != nil {
		return nil, err
	}
	return api.Hits(results), nil
}

// SuggestTranslation drafts a translation of the current page's text and
// applies it as an ordinary translation edit. Nothing is saved.
func (a *App) SuggestTranslation() (string, error) {
	s := a.current()
	if s == nil {
		return "", types.NewAppError(types.ErrNotLoaded, "no document open", nil)
	}
	st := s.State()
	if st.Page == nil {
		return "", types.NewAppError(types.ErrNotLoaded, "no current page", nil)
	}

	suggester, err := a.getSuggester()
	if err != nil {
		a.Notify(notifySuggestFailed)
		return "", err
	}
	draft, err := suggester.Suggest(a.context(), st.Page.Text)
	if err != nil {
		logger.Error("translation suggestion failed", err, logger.String("doc", st.DocumentID), logger.Int("page", st.CurrentPage))
		a.Notify(notifySuggestFailed)
		return "", err
	}

	if s.State().CurrentPage != st.CurrentPage {
		// the user moved on while the model was working
		logger.Info("discarding suggestion for a page no longer shown", logger.Int("page", st.CurrentPage))
		return draft, nil
	}
	s.EditTranslation(draft)
	return draft, nil
}

func (a *App) getSuggester() (*translator.Suggester, error) {
	a.suggesterMu.Lock()
	defer a.suggesterMu.Unlock()
	if a.suggester != nil {
		return a.suggester, nil
	}
	suggester, err := translator.NewSuggester(a.context(), translator.Config{
		APIKey:  a.config.GetOpenAIAPIKey(),
		BaseURL: a.config.GetOpenAIBaseURL(),
		Model:   a.config.GetOpenAIModel(),
	})
	if err != nil {
		return nil, err
	}
	a.suggester = suggester
	return suggester, nil
}

// RenderAnnotation renders annotation content as HTML for the preview panel
func (a *App) RenderAnnotation(content string) (string, error) {
	return a.renderer.HTML(content)
}

// DocumentFileURL returns the URL the PDF widget or image tag loads the
// open document from. It is served by the asset handler.
func (a *App) DocumentFileURL() string {
	s := a.current()
	if s == nil {
		return ""
	}
	st := s.State()
	if !st.Loaded {
		return ""
	}
	return storagePrefix + url.PathEscape(st.Title)
}

// ThumbnailURL returns the cover thumbnail URL of a document
func (a *App) ThumbnailURL(title string) string {
	return a.client.ThumbnailURL(title)
}
