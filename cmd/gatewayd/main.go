// gatewayd serves the tool gateway: the HTTP surface the specialist agents
// call for every customer and ticket operation.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/gateway"
	configx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/config"
	logx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/logger"
)

type AppConfig struct {
	Addr    string `envconfig:"ADDR" split_words:"true" default:":5010"`
	Backend string `envconfig:"BACKEND" split_words:"true" default:"postgres"`
	Seed    bool   `envconfig:"SEED" split_words:"true" default:"true"`
}

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init("gatewayd", *logCfg)

	appCfg := configx.MustNew[AppConfig]("GATEWAY")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize store")
	}
	defer cleanup()

	gw, err := gateway.New(store)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize gateway")
	}
	server, err := gateway.NewServer(gw, appCfg.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize server")
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("gateway server stopped")
	}
	log.Info().Msg("gateway shut down")
}

func buildStore(ctx context.Context, cfg *AppConfig) (gateway.Store, func(), error) {
	switch cfg.Backend {
	case "postgres":
		dbCfg := configx.MustNew[gateway.DBConfig]("GATEWAY_DB")
		store, err := gateway.NewBunStore(*dbCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Bootstrap(ctx); err != nil {
			return nil, nil, err
		}
		if cfg.Seed {
			if err := store.Seed(ctx); err != nil {
				return nil, nil, err
			}
		}
		return store, func() { _ = store.Close() }, nil

	case "memory":
		store := gateway.NewMemStore()
		if cfg.Seed {
			store.Seed()
		}
		return store, func() {}, nil

	default:
		return nil, nil, errors.New("unknown gateway backend: " + cfg.Backend)
	}
}
