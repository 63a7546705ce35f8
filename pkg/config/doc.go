// Package config loads typed configuration from environment variables using
// github.com/caarlos0/env/v11, with optional .env support via
// github.com/joho/godotenv.
//
// Results are cached per struct type, so every package can call Load for its
// own Config without re-parsing the environment. Config types may implement
// Validator to reject inconsistent settings at startup.
package config
