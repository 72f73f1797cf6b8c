// Package config loads typed configuration from environment variables.
//
// Every package that needs settings declares its own struct with
// github.com/caarlos0/env tags (pg.Config, redis.Config, email.Config,
// httpserver.Config, billing.Config) and the command wires them with Load:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
//
// A .env file in the working directory is read once through
// github.com/joho/godotenv; explicit files can be loaded with LoadEnv.
package config
