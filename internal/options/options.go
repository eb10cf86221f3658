// Package options holds the immutable launch parameters of a synthesis engine
// and derives everything computed from them: per-client resource ID ranges,
// the command-line token sequence for a subprocess engine and the parameter
// map for an embedded one.
package options

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Engine defaults. Values equal to these never produce a command-line token.
const (
	DefaultIPAddress = "127.0.0.1"
	DefaultPort      = 57110

	ProtocolUDP = "udp"
	ProtocolTCP = "tcp"

	// SafetyClipInfinite disables the output safety clipper.
	SafetyClipInfinite = "inf"

	// syncIDBits is the width of the per-client synchronization ID block.
	syncIDBits = 26
)

// Options is the full set of engine launch parameters.
//
// Options is a value type: copy it freely, and build modified versions with
// New or With. Optional numeric fields use zero for "unset"; optional string
// fields use the empty string.
type Options struct {
	AudioBusChannelCount       int    `toml:"audio_bus_channel_count" json:"audio_bus_channel_count"`
	BlockSize                  int    `toml:"block_size" json:"block_size"`
	BufferCount                int    `toml:"buffer_count" json:"buffer_count"`
	ControlBusChannelCount     int    `toml:"control_bus_channel_count" json:"control_bus_channel_count"`
	Executable                 string `toml:"executable" json:"executable,omitempty"`
	HardwareBufferSize         int    `toml:"hardware_buffer_size" json:"hardware_buffer_size,omitempty"`
	InitialNodeID              int    `toml:"initial_node_id" json:"initial_node_id"`
	InputBusChannelCount       int    `toml:"input_bus_channel_count" json:"input_bus_channel_count"`
	InputDevice                string `toml:"input_device" json:"input_device,omitempty"`
	InputStreamMask            string `toml:"input_stream_mask" json:"input_stream_mask,omitempty"`
	IPAddress                  string `toml:"ip_address" json:"ip_address"`
	LoadSynthDefs              bool   `toml:"load_synthdefs" json:"load_synthdefs"`
	MaximumLogins              int    `toml:"maximum_logins" json:"maximum_logins"`
	MaximumNodeCount           int    `toml:"maximum_node_count" json:"maximum_node_count"`
	MaximumSynthDefCount       int    `toml:"maximum_synthdef_count" json:"maximum_synthdef_count"`
	MemoryLocking              bool   `toml:"memory_locking" json:"memory_locking"`
	MemorySize                 int    `toml:"memory_size" json:"memory_size"`
	OutputBusChannelCount      int    `toml:"output_bus_channel_count" json:"output_bus_channel_count"`
	OutputDevice               string `toml:"output_device" json:"output_device,omitempty"`
	OutputStreamMask           string `toml:"output_stream_mask" json:"output_stream_mask,omitempty"`
	Password                   string `toml:"password" json:"-"`
	Port                       int    `toml:"port" json:"port"`
	Protocol                   string `toml:"protocol" json:"protocol"`
	RandomNumberGeneratorCount int    `toml:"random_number_generator_count" json:"random_number_generator_count"`
	Realtime                   bool   `toml:"realtime" json:"realtime"`
	RestrictedPath             string `toml:"restricted_path" json:"restricted_path,omitempty"`
	SafetyClip                 string `toml:"safety_clip" json:"safety_clip,omitempty"`
	SampleRate                 int    `toml:"sample_rate" json:"sample_rate,omitempty"`
	Threads                    int    `toml:"threads" json:"threads"`
	UGenPluginsPath            string `toml:"ugen_plugins_path" json:"ugen_plugins_path,omitempty"`
	Verbosity                  int    `toml:"verbosity" json:"verbosity"`
	WireBufferCount            int    `toml:"wire_buffer_count" json:"wire_buffer_count"`
	ZeroConfiguration          bool   `toml:"zero_configuration" json:"zero_configuration"`
}

// Option mutates Options during construction.
type Option func(*Options)

// Default returns the engine's built-in defaults.
func Default() Options {
	return Options{
		AudioBusChannelCount:       1024,
		BlockSize:                  64,
		BufferCount:                1024,
		ControlBusChannelCount:     16384,
		InitialNodeID:              1000,
		InputBusChannelCount:       8,
		IPAddress:                  DefaultIPAddress,
		LoadSynthDefs:              true,
		MaximumLogins:              1,
		MaximumNodeCount:           1024,
		MaximumSynthDefCount:       1024,
		MemorySize:                 8192,
		OutputBusChannelCount:      8,
		Port:                       DefaultPort,
		Protocol:                   ProtocolUDP,
		RandomNumberGeneratorCount: 64,
		Realtime:                   true,
		Threads:                    6,
		WireBufferCount:            64,
	}
}

// New builds validated Options from the defaults plus the given overrides.
func New(opts ...Option) (Options, error) {
	return Default().With(opts...)
}

// With returns a validated copy of o with the overrides applied.
func (o Options) With(opts ...Option) (Options, error) {
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Address returns the "ip:port" the engine listens on.
func (o Options) Address() string {
	return fmt.Sprintf("%s:%d", o.IPAddress, o.Port)
}

// FirstPrivateBusID is the first audio bus not wired to hardware.
func (o Options) FirstPrivateBusID() int {
	return o.OutputBusChannelCount + o.InputBusChannelCount
}

// PrivateAudioBusChannelCount is the number of audio buses left for clients.
func (o Options) PrivateAudioBusChannelCount() int {
	return o.AudioBusChannelCount - o.InputBusChannelCount - o.OutputBusChannelCount
}

// ConfigurationError collects every validation failure of an Options value.
type ConfigurationError struct {
	Errors []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid engine options:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks the options for internal consistency. All checks run and
// their failures are collected into a single *ConfigurationError.
func (o Options) Validate() error {
	var errs []string

	if o.AudioBusChannelCount < o.InputBusChannelCount+o.OutputBusChannelCount {
		errs = append(errs, fmt.Sprintf(
			"insufficient audio buses: %d < %d inputs + %d outputs",
			o.AudioBusChannelCount, o.InputBusChannelCount, o.OutputBusChannelCount))
	}
	if o.InputBusChannelCount < 0 || o.OutputBusChannelCount < 0 {
		errs = append(errs, "input and output bus channel counts must not be negative")
	}
	if o.MaximumLogins < 1 {
		errs = append(errs, "maximum_logins must be positive")
	}
	if o.BufferCount < 0 || o.ControlBusChannelCount < 0 {
		errs = append(errs, "buffer and control bus counts must not be negative")
	}
	switch o.Protocol {
	case ProtocolUDP, ProtocolTCP:
	default:
		errs = append(errs, fmt.Sprintf("protocol %q must be %q or %q", o.Protocol, ProtocolUDP, ProtocolTCP))
	}
	if o.Port < 0 || o.Port > math.MaxUint16 {
		errs = append(errs, fmt.Sprintf("port %d out of range", o.Port))
	}
	if o.SafetyClip != "" && o.SafetyClip != SafetyClipInfinite {
		if _, err := strconv.ParseFloat(o.SafetyClip, 64); err != nil {
			errs = append(errs, fmt.Sprintf("safety_clip %q must be a number or %q", o.SafetyClip, SafetyClipInfinite))
		}
	}

	if len(errs) > 0 {
		return &ConfigurationError{Errors: errs}
	}
	return nil
}

// Functional overrides, used by tests and the CLI.

// WithAudioBusChannels sets the total audio bus count.
func WithAudioBusChannels(n int) Option { return func(o *Options) { o.AudioBusChannelCount = n } }

// WithInputChannels sets the hardware input bus count.
func WithInputChannels(n int) Option { return func(o *Options) { o.InputBusChannelCount = n } }

// WithOutputChannels sets the hardware output bus count.
func WithOutputChannels(n int) Option { return func(o *Options) { o.OutputBusChannelCount = n } }

// WithMaximumLogins sets the number of clients the engine partitions IDs for.
func WithMaximumLogins(n int) Option { return func(o *Options) { o.MaximumLogins = n } }

// WithPort sets the listening port.
func WithPort(port int) Option { return func(o *Options) { o.Port = port } }

// WithIPAddress sets the listening address.
func WithIPAddress(addr string) Option { return func(o *Options) { o.IPAddress = addr } }

// WithProtocol selects udp or tcp.
func WithProtocol(protocol string) Option { return func(o *Options) { o.Protocol = protocol } }

// WithExecutable pins the engine binary.
func WithExecutable(path string) Option { return func(o *Options) { o.Executable = path } }

// WithRealtime toggles realtime mode.
func WithRealtime(realtime bool) Option { return func(o *Options) { o.Realtime = realtime } }
