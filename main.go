package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/chazu/tractview/pkg/config"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	configPath := flag.String("config", "", "tube configuration file (.json, .yaml, .toml)")
	open := flag.String("open", "", "file or URL to open on startup")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatal(err)
	}

	err = wails.Run(&options.App{
		Title:  "tractview",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup: app.startup,
		OnDomReady: func(ctx context.Context) {
			if *open != "" {
				app.Open(*open)
			}
		},
		OnShutdown: app.shutdown,
		Bind:       []interface{}{app},
	})
	if err != nil {
		log.Fatal(err)
	}
}
