package main

import (
	"context"
	"embed"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"classics-portal/internal/logger"
)

//go:embed all:frontend/dist
var assets embed.FS

// GUICmd starts the desktop editor
type GUICmd struct {
	Doc  string `help:"Document ID to open on start." placeholder:"ID"`
	Page int    `help:"1-based page to open the document at." default:"1"`
}

// Run opens the Wails window
func (c *GUICmd) Run(g *Globals) error {
	if err := logger.Init(&logger.Config{
		LogFilePath: g.logFile("classics-portal.log"),
		Level:       g.level(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "警告: ログを初期化できません: %v\n", err)
	}
	defer logger.Close()

	app, err := NewAppWithConfig(g.Config)
	if err != nil {
		return err
	}
	app.SetWailsRuntime(true)

	startupFunc := func(ctx context.Context) {
		app.startup(ctx)

		if c.Doc != "" {
			// Use goroutine to avoid blocking the startup
			go func() {
				if _, err := app.OpenDocument(c.Doc, c.Page); err != nil {
					runtime.EventsEmit(ctx, "open-error", err.Error())
				}
			}()
		}
	}

	return wails.Run(&options.App{
		Title:  "古典籍 注釈エディタ",
		Width:  1280,
		Height: 860,
		AssetServer: &assetserver.Options{
			Assets:  assets,
			Handler: &StorageHandler{app: app},
		},
		BackgroundColour: &options.RGBA{R: 250, G: 248, B: 243, A: 1},
		OnStartup:        startupFunc,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("classics-portal"),
		kong.Description("古典籍デジタル化ポータルの注釈エディタ"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
