// Package config provides database credential utilities.
package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoDSN is returned when no MySQL DSN is configured.
var ErrNoDSN = errors.New("no MySQL DSN configured")

// GetMySQLDSN returns the MySQL DSN from the configuration.
// It checks in order: environment variable, config file.
func GetMySQLDSN(cfg *Config) (string, error) {
	if dsn := os.Getenv("REASONLOOP_MYSQL_DSN"); dsn != "" {
		return dsn, nil
	}

	if cfg != nil && cfg.MySQL.DSN != "" {
		dsn := os.ExpandEnv(cfg.MySQL.DSN)
		if dsn != "" && !strings.HasPrefix(dsn, "${") {
			return dsn, nil
		}
	}

	return "", ErrNoDSN
}

// MaskDSN returns a masked version of a MySQL DSN for display. The password
// portion of user:password@tcp(...) is replaced with asterisks.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}

	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	colon := strings.Index(dsn[:at], ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:colon+1] + "***" + dsn[at:]
}

// DSNSource represents where a DSN was loaded from.
type DSNSource string

const (
	DSNSourceEnv    DSNSource = "environment"
	DSNSourceConfig DSNSource = "config_file"
	DSNSourceNone   DSNSource = "none"
)

// GetDSNSource returns where the MySQL DSN was sourced from.
func GetDSNSource(cfg *Config) DSNSource {
	if os.Getenv("REASONLOOP_MYSQL_DSN") != "" {
		return DSNSourceEnv
	}

	if cfg != nil && cfg.MySQL.DSN != "" {
		dsn := os.ExpandEnv(cfg.MySQL.DSN)
		if dsn != "" && !strings.HasPrefix(dsn, "${") {
			return DSNSourceConfig
		}
	}

	return DSNSourceNone
}
