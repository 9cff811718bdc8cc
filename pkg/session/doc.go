// Package session provides the minimal session model the billing actions
// depend on: a token-keyed record with an optional user ID, context helpers
// for request-scoped access, and memory and PostgreSQL stores.
package session
