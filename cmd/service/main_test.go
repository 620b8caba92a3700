package main

import "testing"

// The route table is covered by internal/http router tests and config loading by
// internal/config; main only connects them.
func TestServiceEntrypoint_WiringOnly(t *testing.T) {
	t.Skip("main.go only wires config, backends and the router; run the integration tests for an end-to-end check")
}
