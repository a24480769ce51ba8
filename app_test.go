package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"classics-portal/internal/translator"
	"classics-portal/internal/types"
)

// fakePortal is an in-memory portal API
type fakePortal struct {
	mu    sync.Mutex
	docs  map[string]*types.Document
	files map[string][]byte
	puts  map[string][][]types.Page
	auth  []string
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		docs: map[string]*types.Document{
			"7": {
				ID:    "7",
				Title: "論語.jpg",
				Pages: []types.Page{
					{ID: 1, Text: "子曰", JPTranslation: "先生が言った", Annotations: []types.Annotation{{TargetText: "子", Type: "人名", Content: "孔子"}}},
					{ID: 2, Text: "學而時習之", JPTranslation: "学んで時に習う", Annotations: []types.Annotation{{TargetText: "習", Type: "語釈", Content: "復習"}}},
				},
			},
			"9": {ID: "9", Title: "孟子.png"},
		},
		files: map[string][]byte{"論語.jpg": []byte("\xff\xd8\xff\xe0 fake jpeg")},
		puts:  map[string][][]types.Page{},
	}
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/doc-detail/"):
		doc, ok := p.docs[strings.TrimPrefix(r.URL.Path, "/doc-detail/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "document not found"}`))
			return
		}
		json.NewEncoder(w).Encode(doc)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/doc-edit/"):
		p.auth = append(p.auth, r.Header.Get("Authorization"))
		var body struct {
			Pages []types.Page `json:"pages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/doc-edit/")
		p.puts[id] = append(p.puts[id], body.Pages)
		w.Write([]byte(`{"message": "updated"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/login":
		w.Write([]byte(`{"token": "issued-token", "user": {"id": 3, "name": "研究者", "email": "r@example.org", "role": "editor"}}`))
	case r.URL.Path == "/doc-list":
		w.Write([]byte(`[{"id": 7, "user_id": 1, "title": "論語.jpg", "type": 1}]`))
	case r.URL.Path == "/search":
		if r.URL.Query().Get("keyword") != "學" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id": 7, "user_id": 1, "document_title": "論語.jpg", "total_matches": 1,
			"matches": {"page_matches": [{"page_number": 2, "matches": [{"type": "text", "context": "學而時習之"}]}]}}]`))
	case strings.HasPrefix(r.URL.Path, "/storage/documents/"):
		data, ok := p.files[strings.TrimPrefix(r.URL.Path, "/storage/documents/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func newTestApp(t *testing.T, serverURL string) (*App, string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.json")
	cfg := types.Config{APIBaseURL: serverURL, APIToken: "stored-token"}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	app, err := NewAppWithConfig(configPath)
	if err != nil {
		t.Fatalf("NewAppWithConfig() returned error: %v", err)
	}
	app.startup(context.Background())
	return app, configPath
}

type scriptedModel struct {
	reply string
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp() returned nil")
	}
	if app.GetState() != nil {
		t.Error("a new app should have no open document")
	}
}

func TestNewAppWithConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	app, err := NewAppWithConfig(configPath)
	if err != nil {
		t.Fatalf("NewAppWithConfig() returned error: %v", err)
	}
	if app.config == nil {
		t.Fatal("App config should not be nil")
	}
	if app.config.GetConfigPath() != configPath {
		t.Errorf("config path = %s, want %s", app.config.GetConfigPath(), configPath)
	}
}

func TestApp_Startup(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()

	app, _ := newTestApp(t, server.URL)

	if app.ctx == nil {
		t.Error("Context was not set")
	}
	if app.client == nil || app.probe == nil || app.renderer == nil {
		t.Fatal("modules should be initialized after startup")
	}
	if app.client.BaseURL() != server.URL {
		t.Errorf("client base URL = %s, want %s", app.client.BaseURL(), server.URL)
	}
	if app.client.Token() != "stored-token" {
		t.Errorf("stored token not applied, got %q", app.client.Token())
	}
}

func TestApp_NoDocumentOpen(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	if app.GoToPage(1) {
		t.Error("GoToPage should fail without a document")
	}
	if app.AddAnnotation() != -1 {
		t.Error("AddAnnotation should return NoSelection without a document")
	}
	if err := app.Save(); !types.HasCode(err, types.ErrNotLoaded) {
		t.Errorf("Save() error = %v, want NOT_LOADED", err)
	}
	if _, err := app.SuggestTranslation(); !types.HasCode(err, types.ErrNotLoaded) {
		t.Errorf("SuggestTranslation() error = %v, want NOT_LOADED", err)
	}
	if app.DocumentFileURL() != "" {
		t.Error("DocumentFileURL should be empty without a document")
	}
	app.ViewerPageChanged(3)
	app.ViewerDocumentLoaded(3)
	app.shutdown(context.Background())
}

func TestApp_OpenEditSave(t *testing.T) {
	portal := newFakePortal()
	server := httptest.NewServer(portal)
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	st, err := app.OpenDocument("7", 2)
	if err != nil {
		t.Fatalf("OpenDocument() error: %v", err)
	}
	if st.CurrentPage != 2 || st.PDFCurrentPage != 1 {
		t.Errorf("deep link not applied: current=%d pdf=%d", st.CurrentPage, st.PDFCurrentPage)
	}
	if st.IsPDF {
		t.Error("a .jpg document is not a PDF")
	}

	if !app.EditTranslation("学んで折にふれて復習する") {
		t.Fatal("EditTranslation() returned false")
	}
	idx := app.AddAnnotation()
	if idx != 1 {
		t.Fatalf("AddAnnotation() = %d, want 1", idx)
	}
	if !app.EditAnnotation(idx, "target_text", "時") {
		t.Error("EditAnnotation() returned false")
	}
	if err := app.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	portal.mu.Lock()
	defer portal.mu.Unlock()
	puts := portal.puts["7"]
	if len(puts) != 1 {
		t.Fatalf("expected one save request, got %d", len(puts))
	}
	sent := puts[0]
	if sent[1].JPTranslation != "学んで折にふれて復習する" {
		t.Errorf("translation not saved: %q", sent[1].JPTranslation)
	}
	if len(sent[1].Annotations) != 2 || sent[1].Annotations[1].TargetText != "時" {
		t.Errorf("annotation not saved: %+v", sent[1].Annotations)
	}
	if sent[0].JPTranslation != "先生が言った" {
		t.Errorf("page 1 changed: %+v", sent[0])
	}
	if portal.auth[0] != "Bearer stored-token" {
		t.Errorf("Authorization = %q", portal.auth[0])
	}
}

func TestApp_OpenDocumentReplacesSession(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	if _, err := app.OpenDocument("7", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := app.OpenDocument("9", 1); err != nil {
		t.Fatal(err)
	}
	st := app.GetState()
	if st == nil || st.DocumentID != "9" {
		t.Fatalf("expected document 9 to be open, got %+v", st)
	}

	// no pages from the portal and no viewer count yet
	if len(st.Pages) != 0 {
		t.Errorf("expected deferred pages, got %d", len(st.Pages))
	}
	app.ViewerDocumentLoaded(2)
	if got := len(app.GetState().Pages); got != 2 {
		t.Errorf("expected 2 synthesized pages, got %d", got)
	}

	app.CloseDocument()
	if app.GetState() != nil {
		t.Error("CloseDocument should clear the session")
	}
}

func TestApp_OpenDocumentNotFound(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	if _, err := app.OpenDocument("404", 1); !types.HasCode(err, types.ErrAPI) {
		t.Errorf("OpenDocument() error = %v, want API_ERROR", err)
	}
}

func TestApp_Navigation(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	if _, err := app.OpenDocument("7", 1); err != nil {
		t.Fatal(err)
	}
	app.ViewerDocumentLoaded(2)

	if !app.NextPage() || app.GetState().CurrentPage != 2 {
		t.Error("NextPage should move to page 2")
	}
	if app.NextPage() || app.LastPage() {
		t.Error("forward buttons are disabled on the last page")
	}
	if !app.FirstPage() || app.PrevPage() {
		t.Error("FirstPage should move back and disable PrevPage")
	}
	app.ViewerPageChanged(1)
	if app.GetState().CurrentPage != 2 {
		t.Error("viewer page change not applied")
	}
	app.SetZoom(2)
	if app.GetState().Zoom != 2 {
		t.Error("zoom not recorded")
	}
}

func TestApp_SignIn(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, configPath := newTestApp(t, server.URL)

	user, err := app.SignIn("r@example.org", "secret")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if user == nil || user.Role != "editor" {
		t.Errorf("unexpected user %+v", user)
	}
	if app.client.Token() != "issued-token" {
		t.Errorf("client token = %q", app.client.Token())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("issued-token")) {
		t.Error("token was not persisted to the config file")
	}

	if err := app.SignOut(); err != nil {
		t.Fatal(err)
	}
	if app.client.Token() != "" {
		t.Error("SignOut should clear the token")
	}
}

func TestApp_SearchAndList(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	hits, err := app.SearchHits(" 學 ")
	if err != nil {
		t.Fatalf("SearchHits() error: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "7" || hits[0].Page != 2 {
		t.Fatalf("unexpected hits %+v", hits)
	}

	// a hit opens the document at its page
	st, err := app.OpenDocument(string(hits[0].DocumentID), hits[0].Page)
	if err != nil {
		t.Fatal(err)
	}
	if st.Page == nil || st.Page.Text != "學而時習之" {
		t.Errorf("hit did not open on its page: %+v", st.Page)
	}

	if _, err := app.Search("   "); !types.HasCode(err, types.ErrInvalidInput) {
		t.Errorf("empty keyword error = %v", err)
	}

	docs, err := app.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "7" {
		t.Errorf("unexpected documents %+v", docs)
	}
	if got := app.ThumbnailURL("論語.jpg"); !strings.HasSuffix(got, "/storage/thumbnails/"+"%E8%AB%96%E8%AA%9E"+"/1.jpg") {
		t.Errorf("ThumbnailURL() = %s", got)
	}
}

func TestApp_SuggestTranslation(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)
	app.suggester = translator.NewSuggesterWithModel(&scriptedModel{reply: "先生はおっしゃった"}, "test")

	if _, err := app.OpenDocument("7", 1); err != nil {
		t.Fatal(err)
	}
	draft, err := app.SuggestTranslation()
	if err != nil {
		t.Fatalf("SuggestTranslation() error: %v", err)
	}
	if draft != "先生はおっしゃった" {
		t.Errorf("draft = %q", draft)
	}
	if got := app.GetState().Page.JPTranslation; got != draft {
		t.Errorf("draft not applied to the page: %q", got)
	}
}

func TestApp_SuggestTranslation_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	if _, err := app.OpenDocument("7", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := app.SuggestTranslation(); !types.HasCode(err, types.ErrConfig) {
		t.Errorf("SuggestTranslation() error = %v, want CONFIG_ERROR", err)
	}
	if got := app.GetState().Page.JPTranslation; got != "先生が言った" {
		t.Errorf("page changed on failure: %q", got)
	}
}

func TestApp_RenderAnnotation(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)

	html, err := app.RenderAnnotation("**孔子**")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<strong>孔子</strong>") {
		t.Errorf("RenderAnnotation() = %s", html)
	}
}

func TestStorageHandler(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	app, _ := newTestApp(t, server.URL)
	handler := &StorageHandler{app: app}

	if _, err := app.OpenDocument("7", 1); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, app.DocumentFileURL(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\xff\xd8\xff")) {
		t.Error("document bytes not proxied")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage/documents/missing.pdf", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("missing file status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unrelated path status = %d", rec.Code)
	}
}

func TestBackfillCmd(t *testing.T) {
	portal := newFakePortal()
	server := httptest.NewServer(portal)
	defer server.Close()
	_, configPath := newTestApp(t, server.URL)

	var out bytes.Buffer
	g := &Globals{Config: configPath, LogFile: filepath.Join(t.TempDir(), "cli.log"), out: &out}
	cmd := &BackfillCmd{ID: "9", Pages: 3, Save: true}
	if err := cmd.Run(g); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "0 pages from the portal, 3 after backfill") {
		t.Errorf("unexpected summary:\n%s", text)
	}
	if !strings.Contains(text, "ページ 3 の本文です") {
		t.Errorf("placeholder text missing:\n%s", text)
	}

	portal.mu.Lock()
	defer portal.mu.Unlock()
	if len(portal.puts["9"]) != 1 || len(portal.puts["9"][0]) != 3 {
		t.Errorf("expected one save with 3 pages, got %+v", portal.puts["9"])
	}
}

func TestSearchCmd(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	_, configPath := newTestApp(t, server.URL)

	var out bytes.Buffer
	g := &Globals{Config: configPath, LogFile: filepath.Join(t.TempDir(), "cli.log"), out: &out}
	if err := (&SearchCmd{Keyword: "學"}).Run(g); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "7/2\t論語.jpg") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := (&SearchCmd{Keyword: "無"}).Run(g); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "該当なし" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestListCmd(t *testing.T) {
	server := httptest.NewServer(newFakePortal())
	defer server.Close()
	_, configPath := newTestApp(t, server.URL)

	var out bytes.Buffer
	g := &Globals{Config: configPath, LogFile: filepath.Join(t.TempDir(), "cli.log"), out: &out}
	if err := (&ListCmd{}).Run(g); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "7\t論語.jpg\t") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestGlobals_LogFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	configured := filepath.Join(t.TempDir(), "from-config.log")
	data, err := json.Marshal(types.Config{LogFile: configured})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	g := &Globals{Config: configPath}
	if got := g.logFile("fallback.log"); got != configured {
		t.Errorf("logFile() = %s, want config value %s", got, configured)
	}

	g.LogFile = "flag.log"
	if got := g.logFile("fallback.log"); got != "flag.log" {
		t.Errorf("flag should win, got %s", got)
	}

	g = &Globals{Config: filepath.Join(t.TempDir(), "missing.json")}
	if got := g.logFile("fallback.log"); got != "fallback.log" {
		t.Errorf("logFile() = %s, want fallback", got)
	}
}

// The embedded frontend must consume every viewer command and feed the
// viewer callbacks back into the App bindings.
func TestFrontend_WiresViewer(t *testing.T) {
	data, err := assets.ReadFile("frontend/dist/index.html")
	if err != nil {
		t.Fatalf("embedded frontend missing: %v", err)
	}
	page := string(data)

	for _, event := range []string{EventState, EventViewerJump, EventViewerZoom, EventNotify} {
		if !strings.Contains(page, `EventsOn("`+event+`"`) {
			t.Errorf("frontend does not subscribe to %q", event)
		}
	}
	for _, binding := range []string{"ViewerPageChanged(", "ViewerDocumentLoaded(", "GoToPage(", "SetZoom(", "ProbePageCount("} {
		if !strings.Contains(page, "App()."+binding) {
			t.Errorf("frontend never calls %s", binding)
		}
	}
}
