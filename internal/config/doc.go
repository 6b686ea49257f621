// Package config provides centralized configuration management for the
// AgentPay runtime: a JSON configuration file with sensible defaults for the
// API server, wallet identity, spending policy, storage backends, schedule
// queue drivers and logging.
package config
