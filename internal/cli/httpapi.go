package cli

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/meshlink/overlay/internal/api"
	"github.com/meshlink/overlay/internal/config"
	"github.com/meshlink/overlay/internal/logging"
)

// runHTTPAPI starts the supplemental introspection server (§11) if a port
// is configured, returning nil when disabled (APITuning.Port == 0).
func runHTTPAPI(ctx context.Context, cfg config.APITuning, status api.StatusProvider, log *logging.Logger) *http.Server {
	if cfg.Port == 0 {
		return nil
	}

	srv := api.NewServer(status)
	if cfg.MetricsEnabled {
		srv.EnableMetrics()
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http api: %v", err)
		}
	}()
	log.Printf("http api listening on %s", addr)
	return httpSrv
}

func shutdownHTTPAPI(srv *http.Server, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http api shutdown: %v", err)
	}
}
