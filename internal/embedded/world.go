// Package embedded is the foreign-call boundary for running the synthesis
// engine inside this process through libscsynth.
//
// The engine keeps process-global state, so at most one World may be active
// per process. Registry is the single point that enforces this; callers
// share DefaultRegistry and tests inject their own.
package embedded

import (
	"errors"
)

// Handle is an opaque reference to a constructed World.
type Handle uintptr

// TCP listener limits used when the engine is configured for tcp.
const (
	MaxTCPConnections = 64
	TCPBacklog        = 128
)

// ErrUnavailable is returned by NewLibWorld when the binary was built
// without libscsynth support.
var ErrUnavailable = errors.New("embedded engine not available: build with -tags libscsynth")

// QuitPacket is the OSC message "/quit" with no arguments.
var QuitPacket = []byte("/quit\x00\x00\x00,\x00\x00\x00")

// World is the engine's foreign interface.
type World interface {
	// New constructs a world from a parameter map as produced by
	// options.Options.WorldParams.
	New(params map[string]any) (Handle, error)
	// OpenUDP binds a UDP command port. It reports success.
	OpenUDP(h Handle, bindTo string, port int) bool
	// OpenTCP binds a TCP command port. It reports success.
	OpenTCP(h Handle, bindTo string, port, maxConnections, backlog int) bool
	// WaitForQuit blocks until the world has processed /quit, then tears it
	// down.
	WaitForQuit(h Handle, unloadPlugins bool)
	// Cleanup tears the world down without waiting for /quit.
	Cleanup(h Handle, unloadPlugins bool)
	// SendPacket delivers a raw OSC packet to the world.
	SendPacket(h Handle, packet []byte) bool
	// SetPrintFunc routes the engine's text output to fn; nil discards it.
	// Output arrives in arbitrary fragments, not lines.
	SetPrintFunc(fn func(text string))
}
