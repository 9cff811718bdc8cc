// Package pg provides PostgreSQL connection pooling with startup retry and
// goose-based schema migrations for the billing tables.
package pg
