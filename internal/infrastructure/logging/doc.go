// Package logging builds the service's slog loggers.
//
// Every record carries service=leitura and the build version. Output is
// JSON unless format is "text", and goes to stdout unless output is
// "stderr".
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Values of credential attributes (password, token, authorization, cookie,
// secret, and any key ending in _token or _secret) are written as
// [REDACTED]. Log user_id and session_id instead of token values.
//
//	logger := logging.New(cfg.Logging, version)
//	logger.With("component", "sessions").Info("purged", "count", n)
package logging
