// Package config provides the live configuration consumed by the
// scheduler and the defaults of the cache builder.
//
// Provider is polled by the scheduler's maintenance loop, so changes to
// pool sizes and timeouts take effect without a restart. Static serves a
// fixed Settings value; Viper reads a config file plus IVARATOR_*
// environment variables and reloads the file when it changes.
package config
