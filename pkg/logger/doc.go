// Package logger provides a small factory over log/slog with JSON and text
// formats, environment-driven configuration, and static attributes.
package logger
