// Package logging provides structured logging for equipctl.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log passwords, tokens or the JWT secret.
package logging
