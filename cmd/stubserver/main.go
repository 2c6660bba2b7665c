// Command stubserver runs a local stand-in for the backend credits ledger
// so apps can develop against the client library without the real service.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"credits/internal/config"
	"credits/internal/stubserver"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnv()
	cfg := config.LoadStubConfig()

	store, err := stubserver.OpenStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	if cfg.SeedEmail != "" && cfg.SeedPassword != "" {
		if err := store.SeedUser(cfg.SeedEmail, cfg.SeedPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to seed dev user")
		}
		log.Info().Str("email", cfg.SeedEmail).Msg("dev user ready")
	}

	app := stubserver.NewApp(cfg, store)

	log.Info().Str("port", cfg.Port).Msg("stub ledger listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
