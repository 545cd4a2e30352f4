package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Addr           string `env:"ADDR" envDefault:":8080"`
	DataDir        string `env:"DATA_DIR" envDefault:"."`
	StakingEnabled bool   `env:"STAKING_ENABLED" envDefault:"true"`
	SolanaRPCURL   string `env:"SOLANA_RPC_URL" envDefault:"https://api.devnet.solana.com"`
	DebugLevel     string `env:"DEBUG_LEVEL" envDefault:"info"`
}

func loadConfig() (*config, error) {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := env.ParseAsWithOptions[config](env.Options{Prefix: "CLICKBATTLE_"})
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
