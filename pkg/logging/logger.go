// Package logging builds the process-wide zap logger and provides helpers
// for keeping credentials out of log output.
package logging

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

// Pattern to match connection string credentials (user:pass@host format).
var connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

// NewLogger builds the process logger. Local and dev environments get the
// human-readable development encoder; everything else gets production JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "local", "dev":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// SanitizeConnectionString removes credentials from connection strings.
// Use this before logging any database URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return connStringPattern.ReplaceAllString(connStr, "://"+RedactedText+"@"+RedactedText)
}
