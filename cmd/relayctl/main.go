package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/xrsync/internal/auth"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/relay"
	"github.com/danmuck/xrsync/internal/statusapi"
	"github.com/danmuck/xrsync/internal/transport"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("relay")
	configPath := flag.String("config", "", "relay config path (defaults when empty)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg := defaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load relay config")
		}
		cfg = loaded
		log.Info().Str("path", *configPath).Msg("loaded relay config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	srv, err := relay.New(cfg.Relay)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid relay config")
	}
	engine := statusapi.NewEngine("relay", cfg.CorsOrigins)
	statusapi.RegisterCommon(engine, "relay", time.Now())
	srv.RegisterRoutes(engine, cfg.Path, auth.ForKey(cfg.AccessKey))

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	if cfg.TLSCertFile != "" {
		tlsCfg, err := transport.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSClientCAFile)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid relay tls config")
		}
		httpSrv.TLSConfig = tlsCfg
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Bool("tls", httpSrv.TLSConfig != nil).Msg("relay started")
	if httpSrv.TLSConfig != nil {
		err = httpSrv.ListenAndServeTLS("", "")
	} else {
		err = httpSrv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("relay stopped")
	}
	log.Info().Msg("relay stopped")
}
