package main

import (
	"fmt"
	"os"

	chatterline "github.com/chatterline/chatterline-go"
)

// getClient creates an HTTP client from the stored configuration.
func getClient(cfg *Config) *chatterline.Client {
	var opts []chatterline.ClientOption
	if cfg.Server.BaseURL != "" {
		opts = append(opts, chatterline.WithBaseURL(cfg.Server.BaseURL))
	}
	opts = append(opts, chatterline.WithLogger(newLogger(cfg.Server.LogMode)))
	return chatterline.NewClient(opts...)
}

// requireAuth loads the config and exits unless an auth token is stored.
func requireAuth() *Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not signed in. Run 'chatterline login <phone>' first.")
		os.Exit(1)
	}
	return cfg
}
