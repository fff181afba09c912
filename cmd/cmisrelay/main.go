// cmisrelay
//
// Standalone event relay: accepts websocket connections from widget
// processes and fans every inbound envelope out to all other connections,
// standing in for the parent frame of the embedded deployment.
package main

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/pavel-ixxus/chemistry-cmis/internal/metrics"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
)

func main() {
	addr := envOr("RELAY_LISTEN", ":8790")

	if err := logging.Init(logging.Config{
		Level:  envOr("LOG_LEVEL", "info"),
		Format: envOr("LOG_FORMAT", "json"),
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	relay := events.NewRelay()
	mux := http.NewServeMux()
	mux.Handle("/relay", relay)
	mux.Handle("/metrics", metrics.Handler())

	logging.Info("relay listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Fatal("relay server failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
