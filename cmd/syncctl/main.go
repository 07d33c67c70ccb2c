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

	"github.com/danmuck/xrsync/internal/config"
	"github.com/danmuck/xrsync/internal/device/sim"
	"github.com/danmuck/xrsync/internal/identity"
	"github.com/danmuck/xrsync/internal/local"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/statusapi"
	"github.com/danmuck/xrsync/internal/syncer"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("sync")
	configPath := flag.String("config", "cmd/syncctl/config.toml", "client config path")
	relayURL := flag.String("relay", "", "relay url override")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load client config")
	}
	log.Info().Str("path", *configPath).Msg("loaded client config")
	syncCfg := cfg.SyncerConfig()
	if *relayURL != "" {
		syncCfg.RelayURL = *relayURL
	}

	store, err := identity.OpenBoltStore(cfg.IdentityPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.IdentityPath).Msg("failed to open identity store")
	}
	defer store.Close()

	agg := local.NewAggregator()
	devices := cfg.SimDevices()
	if len(devices) == 0 {
		devices = []sim.Config{{Role: sim.RoleHead}, {Role: sim.RoleRightHand, Haptics: true}}
	}
	for _, d := range devices {
		agg.AddDevice(sim.New(d))
	}

	proxies := reconcile.NewRecordingFactory()
	client, err := syncer.New(syncCfg, syncer.Deps{Identity: store, Local: agg, Proxies: proxies})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid client config")
	}

	engine := statusapi.NewEngine("sync", cfg.CorsOrigins)
	statusapi.RegisterCommon(engine, "sync", time.Now())
	statusapi.RegisterClient(engine, client, proxies)
	httpSrv := &http.Server{Addr: cfg.StatusAddr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status api stopped")
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-client.Errors():
				log.Error().Err(err).Msg("session untrusted")
			}
		}
	}()

	log.Info().Str("relay", syncCfg.RelayURL).Str("status", cfg.StatusAddr).Int("devices", len(devices)).Msg("sync client started")
	if err := client.Run(ctx); err != nil {
		log.Error().Err(err).Msg("sync client stopped")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info().Msg("sync client stopped")
}
