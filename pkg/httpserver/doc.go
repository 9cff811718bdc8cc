// Package httpserver runs the application's HTTP listener with graceful
// shutdown and health probes. It is the outer shell the billing module's
// router mounts into.
package httpserver
