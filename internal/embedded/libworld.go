//go:build libscsynth

package embedded

/*
#cgo CXXFLAGS: -std=c++17 -I/usr/include/SuperCollider/common -I/usr/include/SuperCollider/plugin_interface -I/usr/include/SuperCollider/server
#cgo LDFLAGS: -lscsynth
#include <stdlib.h>
#include "world_shim.h"
*/
import "C"

import (
	"errors"
	"math"
	"sync"
	"unsafe"
)

var (
	printMu   sync.RWMutex
	printFunc func(string)
)

//export synthnodeWorldPrint
func synthnodeWorldPrint(text *C.char) {
	printMu.RLock()
	fn := printFunc
	printMu.RUnlock()
	if fn != nil {
		fn(C.GoString(text))
	}
}

// LibWorld calls into libscsynth.
type LibWorld struct{}

// NewLibWorld returns the libscsynth binding.
func NewLibWorld() (World, error) {
	return LibWorld{}, nil
}

// New calls World_New.
func (LibWorld) New(params map[string]any) (Handle, error) {
	var opts C.synthnode_world_options
	opts.num_audio_bus_channels = C.uint(intParam(params, "num_audio_bus_channels", 1024))
	opts.num_input_bus_channels = C.uint(intParam(params, "num_input_bus_channels", 8))
	opts.num_output_bus_channels = C.uint(intParam(params, "num_output_bus_channels", 8))
	opts.num_control_bus_channels = C.uint(intParam(params, "num_control_bus_channels", 16384))
	opts.block_size = C.uint(intParam(params, "block_size", 64))
	opts.num_buffers = C.uint(intParam(params, "num_buffers", 1024))
	opts.max_nodes = C.uint(intParam(params, "max_nodes", 1024))
	opts.max_graph_defs = C.uint(intParam(params, "max_graph_defs", 1024))
	opts.max_wire_bufs = C.uint(intParam(params, "max_wire_bufs", 64))
	opts.num_rgens = C.uint(intParam(params, "num_rgens", 64))
	opts.max_logins = C.uint(intParam(params, "max_logins", 64))
	opts.realtime_memory_size = C.uint(intParam(params, "realtime_memory_size", 8192))
	opts.preferred_sample_rate = C.uint(intParam(params, "preferred_sample_rate", 0))
	opts.preferred_hardware_buffer_size = C.uint(intParam(params, "preferred_hardware_buffer_size", 0))
	opts.load_graph_defs = C.uint(intParam(params, "load_graph_defs", 1))
	opts.memory_locking = boolParam(params, "memory_locking", false)
	opts.realtime = boolParam(params, "realtime", true)
	opts.verbosity = C.int(intParam(params, "verbosity", 0))
	opts.rendezvous = boolParam(params, "rendezvous", true)
	opts.shared_memory_id = C.int(intParam(params, "shared_memory_id", 0))
	opts.safety_clip_threshold = C.float(floatParam(params, "safety_clip_threshold", 1.26))

	var allocated []*C.char
	str := func(key string) *C.char {
		s, ok := params[key].(string)
		if !ok {
			return nil
		}
		cs := C.CString(s)
		allocated = append(allocated, cs)
		return cs
	}
	defer func() {
		for _, cs := range allocated {
			C.free(unsafe.Pointer(cs))
		}
	}()
	opts.ugen_plugins_path = str("ugen_plugins_path")
	opts.restricted_path = str("restricted_path")
	opts.password = str("password")
	opts.in_device_name = str("in_device_name")
	opts.out_device_name = str("out_device_name")
	opts.input_streams_enabled = str("input_streams_enabled")
	opts.output_streams_enabled = str("output_streams_enabled")

	world := C.synthnode_world_new(&opts)
	if world == nil {
		return 0, errors.New("World_New failed")
	}
	return Handle(uintptr(world)), nil
}

// OpenUDP calls World_OpenUDP.
func (LibWorld) OpenUDP(h Handle, bindTo string, port int) bool {
	cs := C.CString(bindTo)
	defer C.free(unsafe.Pointer(cs))
	return C.synthnode_world_open_udp(worldPtr(h), cs, C.int(port)) != 0
}

// OpenTCP calls World_OpenTCP.
func (LibWorld) OpenTCP(h Handle, bindTo string, port, maxConnections, backlog int) bool {
	cs := C.CString(bindTo)
	defer C.free(unsafe.Pointer(cs))
	return C.synthnode_world_open_tcp(worldPtr(h), cs, C.int(port), C.int(maxConnections), C.int(backlog)) != 0
}

// WaitForQuit calls World_WaitForQuit.
func (LibWorld) WaitForQuit(h Handle, unloadPlugins bool) {
	C.synthnode_world_wait_for_quit(worldPtr(h), cBool(unloadPlugins))
}

// Cleanup calls World_Cleanup.
func (LibWorld) Cleanup(h Handle, unloadPlugins bool) {
	C.synthnode_world_cleanup(worldPtr(h), cBool(unloadPlugins))
}

// SendPacket calls World_SendPacket with a reply function that drops replies.
func (LibWorld) SendPacket(h Handle, packet []byte) bool {
	if len(packet) == 0 {
		return false
	}
	data := C.CBytes(packet)
	defer C.free(data)
	return C.synthnode_world_send_packet(worldPtr(h), (*C.char)(data), C.int(len(packet))) != 0
}

// SetPrintFunc installs fn as the engine's print function.
func (LibWorld) SetPrintFunc(fn func(string)) {
	printMu.Lock()
	printFunc = fn
	printMu.Unlock()
	C.synthnode_set_print_func(cBool(fn != nil))
}

func worldPtr(h Handle) unsafe.Pointer {
	return unsafe.Pointer(uintptr(h)) //nolint:govet // C allocation, never moved by the GC
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func intParam(params map[string]any, key string, def int) int {
	if v, ok := params[key].(int); ok {
		return v
	}
	return def
}

func boolParam(params map[string]any, key string, def bool) C.int {
	if v, ok := params[key].(bool); ok {
		return cBool(v)
	}
	return cBool(def)
}

func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key].(float64)
	if !ok {
		return def
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat32
	}
	return v
}
