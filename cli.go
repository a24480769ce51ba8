package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"classics-portal/internal/config"
	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

// CLI is the command line of the editor. Without a subcommand the GUI starts.
type CLI struct {
	Globals `embed:""`

	GUI      GUICmd      `cmd:"" default:"withargs" help:"Start the desktop editor (default)."`
	Backfill BackfillCmd `cmd:"" help:"Load a document, synthesize missing pages and print them."`
	Search   SearchCmd   `cmd:"" help:"Search transcribed pages."`
	List     ListCmd     `cmd:"" help:"List documents on the portal."`
}

// Globals are the flags shared by every command
type Globals struct {
	Config  string `help:"Path to the configuration file." type:"path" placeholder:"PATH"`
	LogFile string `help:"Path to the log file." type:"path" placeholder:"PATH"`
	Debug   bool   `help:"Enable debug logging."`

	out io.Writer
}

func (g *Globals) writer() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

// logFile picks the --log-file flag, then log_file from the config file,
// then fallback
func (g *Globals) logFile(fallback string) string {
	if g.LogFile != "" {
		return g.LogFile
	}
	if cm, err := config.NewConfigManager(g.Config); err == nil && cm.Load() == nil {
		if path := cm.GetLogFile(); path != "" {
			return path
		}
	}
	return fallback
}

func (g *Globals) level() logger.Level {
	if g.Debug {
		return logger.LevelDebug
	}
	return logger.LevelInfo
}

// headlessApp starts an App outside Wails with console logging
func (g *Globals) headlessApp() (*App, error) {
	if err := logger.Init(&logger.Config{
		LogFilePath:   g.logFile("classics-portal-cli.log"),
		Level:         g.level(),
		EnableConsole: g.Debug,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "警告: ログを初期化できません: %v\n", err)
	}

	app, err := NewAppWithConfig(g.Config)
	if err != nil {
		return nil, err
	}
	app.startup(context.Background())
	if g.Debug {
		logger.GetLogger().SetLevel(logger.LevelDebug)
	}
	return app, nil
}

// BackfillCmd opens a document without the viewer
type BackfillCmd struct {
	ID    string `arg:"" help:"Document ID."`
	Pages int    `help:"Page count to synthesize up to. Probed from the PDF when omitted."`
	Save  bool   `help:"Save the backfilled pages to the portal."`
}

// Run loads, synthesizes and prints the document
func (c *BackfillCmd) Run(g *Globals) error {
	app, err := g.headlessApp()
	if err != nil {
		return err
	}
	defer logger.Close()
	defer app.shutdown(context.Background())
	out := g.writer()

	st, err := app.OpenDocument(c.ID, 1)
	if err != nil {
		return fmt.Errorf("文書の取得に失敗しました: %w", err)
	}
	fetched := len(st.Pages)

	switch {
	case c.Pages > 0:
		app.ViewerDocumentLoaded(c.Pages)
	case st.IsPDF:
		if _, err := app.ProbePageCount(); err != nil {
			return fmt.Errorf("ページ数を取得できません: %w", err)
		}
	}

	st = app.GetState()
	fmt.Fprintf(out, "%s (id %s): %d pages from the portal, %d after backfill\n", st.Title, st.DocumentID, fetched, len(st.Pages))
	for _, p := range st.Pages {
		printPage(out, app, p)
	}

	if c.Save {
		if err := app.Save(); err != nil {
			return fmt.Errorf("保存に失敗しました: %w", err)
		}
		fmt.Fprintln(out, "保存しました")
	}
	return nil
}

func printPage(out io.Writer, app *App, p types.Page) {
	fmt.Fprintf(out, "\n[%d] %s\n", p.ID, firstLine(p.Text))
	fmt.Fprintf(out, "    訳: %s\n", firstLine(p.JPTranslation))
	for i, a := range p.Annotations {
		fmt.Fprintf(out, "    注%d %s (%s): %s\n", i+1, a.TargetText, a.Type, firstLine(app.renderer.PlainText(a.Content)))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// SearchCmd prints search hits as document/page pairs
type SearchCmd struct {
	Keyword string `arg:"" help:"Keyword to search for."`
}

// Run searches and prints one line per hit
func (c *SearchCmd) Run(g *Globals) error {
	app, err := g.headlessApp()
	if err != nil {
		return err
	}
	defer logger.Close()
	out := g.writer()

	hits, err := app.SearchHits(c.Keyword)
	if err != nil {
		return fmt.Errorf("検索に失敗しました: %w", err)
	}
	if len(hits) == 0 {
		fmt.Fprintln(out, "該当なし")
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%s/%d\t%s\t%s\n", h.DocumentID, h.Page, h.Title, strings.Join(h.Contexts, " / "))
	}
	return nil
}

// ListCmd prints the documents on the portal
type ListCmd struct{}

// Run lists documents
func (c *ListCmd) Run(g *Globals) error {
	app, err := g.headlessApp()
	if err != nil {
		return err
	}
	defer logger.Close()
	out := g.writer()

	docs, err := app.ListDocuments()
	if err != nil {
		return fmt.Errorf("文書一覧の取得に失敗しました: %w", err)
	}
	for _, d := range docs {
		fmt.Fprintf(out, "%s\t%s\t%s\n", d.ID, d.Title, app.ThumbnailURL(d.Title))
	}
	return nil
}
