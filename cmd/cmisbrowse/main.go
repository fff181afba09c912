// cmisbrowse
//
// Connects the folder-tree and document-list widgets to a CMIS 1.1
// repository over the browser binding, wires them to an in-process or
// relayed event bus, and renders both as text. Intended as a working
// harness for the widget controllers rather than a polished UI.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pavel-ixxus/chemistry-cmis/internal/config"
	"github.com/pavel-ixxus/chemistry-cmis/internal/metrics"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/browser"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/library"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("cmisbrowse starting",
		zap.String("server", cfg.ServerURL),
		zap.String("relay", cfg.RelayURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logging.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	registry := events.NewRegistry()

	var bus events.Bus
	if cfg.RelayURL != "" {
		relay, err := events.DialRelay(ctx, cfg.RelayURL, registry)
		if err != nil {
			logging.Fatal("relay connection failed", zap.Error(err))
		}
		bus = relay
	} else {
		bus = events.NewLocalBus(registry)
	}
	defer bus.Close()

	gwCfg := session.Config{
		ServerURL:    cfg.ServerURL,
		Username:     cfg.Username,
		Password:     cfg.Password,
		InitObjectID: cfg.InitObjectID,
		InitPath:     cfg.InitPath,
		Timeout:      cfg.Timeout,
	}
	if cfg.Token != "" {
		tok, ok := cmis.ParseToken(cfg.Token)
		if !ok {
			logging.Fatal("CMIS_TOKEN must be a JSON object with one entry")
		}
		gwCfg.Token = &tok
	}
	gateway := session.NewGateway(gwCfg)

	status := &consoleStatus{}

	tree, err := browser.New(browser.Config{
		Gateway:         gateway,
		Bus:             bus,
		Registry:        registry,
		Renderer:        &treePrinter{out: os.Stdout},
		Status:          status,
		ExcludedTypeIDs: cfg.ExcludedTypeIDs,
		OpenRootNode:    cfg.OpenRootNode,
	})
	if err != nil {
		logging.Fatal("browser init failed", zap.Error(err))
	}

	list, err := library.New(library.Config{
		Gateway:              gateway,
		Bus:                  bus,
		Registry:             registry,
		Renderer:             &listPrinter{out: os.Stdout},
		Status:               status,
		SearchObjectTypeID:   cfg.SearchTypeID,
		ExcludedTypeIDs:      cfg.ExcludedTypeIDs,
		InitQuery:            cfg.InitQuery,
		PreviewableMimeTypes: cfg.PreviewableMimeTypes,
		PageSize:             cfg.PageSize,
	})
	if err != nil {
		logging.Fatal("library init failed", zap.Error(err))
	}

	if err := tree.Load(ctx); err != nil {
		logging.Fatal("initial load failed", zap.Error(err))
	}
	sess := gateway.Current()
	if err := list.ShowInitial(ctx); err != nil {
		logging.Error("initial listing failed", zap.Error(err))
	}

	logging.Info("connected",
		zap.String("repository", sess.Repository().Name))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logging.Info("shutting down")
}
