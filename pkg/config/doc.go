// Package config loads typed configuration structs from environment
// variables, with optional .env file support for development.
package config
