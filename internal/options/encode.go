package options

import (
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Command resolves the engine executable and encodes the full invocation.
func (o Options) Command() ([]string, error) {
	executable, err := FindExecutable(o.Executable)
	if err != nil {
		return nil, err
	}
	return o.Encode(executable), nil
}

// Encode returns the invocation tokens for the given executable: the
// executable itself followed by flag/value pairs sorted by flag. Only
// settings that differ from the engine defaults contribute a flag, so equal
// Options always encode identically.
func (o Options) Encode(executable string) []string {
	pairs := make(map[string][]string)

	if o.Realtime {
		if o.IPAddress != DefaultIPAddress {
			pairs["-B"] = []string{o.IPAddress}
		}
		if o.Protocol == ProtocolTCP {
			pairs["-t"] = []string{strconv.Itoa(o.Port)}
		} else {
			pairs["-u"] = []string{strconv.Itoa(o.Port)}
		}
		if o.InputDevice == o.OutputDevice {
			if o.InputDevice != "" {
				pairs["-H"] = []string{o.InputDevice}
			}
		} else {
			pairs["-H"] = []string{o.InputDevice, o.OutputDevice}
		}
		// the engine itself defaults to 64 logins, unlike Default()
		if o.MaximumLogins != 64 {
			pairs["-l"] = []string{strconv.Itoa(o.MaximumLogins)}
		}
		if o.Password != "" {
			pairs["-p"] = []string{o.Password}
		}
		if o.SampleRate != 0 {
			pairs["-S"] = []string{strconv.Itoa(o.SampleRate)}
		}
		if !o.ZeroConfiguration {
			pairs["-R"] = []string{"0"}
		}
	}

	setInt(pairs, "-a", o.AudioBusChannelCount, 1024)
	setInt(pairs, "-z", o.BlockSize, 64)
	setInt(pairs, "-b", o.BufferCount, 1024)
	setInt(pairs, "-c", o.ControlBusChannelCount, 16384)
	if o.HardwareBufferSize != 0 {
		pairs["-Z"] = []string{strconv.Itoa(o.HardwareBufferSize)}
	}
	setInt(pairs, "-i", o.InputBusChannelCount, 8)
	if o.InputStreamMask != "" {
		pairs["-I"] = []string{o.InputStreamMask}
	}
	if !o.LoadSynthDefs {
		pairs["-D"] = []string{"0"}
	}
	setInt(pairs, "-n", o.MaximumNodeCount, 1024)
	setInt(pairs, "-d", o.MaximumSynthDefCount, 1024)
	if o.MemoryLocking {
		pairs["-L"] = nil
	}
	setInt(pairs, "-m", o.MemorySize, 8192)
	setInt(pairs, "-o", o.OutputBusChannelCount, 8)
	if o.OutputStreamMask != "" {
		pairs["-O"] = []string{o.OutputStreamMask}
	}
	setInt(pairs, "-r", o.RandomNumberGeneratorCount, 64)
	if o.RestrictedPath != "" {
		pairs["-P"] = []string{o.RestrictedPath}
	}
	if o.SafetyClip != "" {
		pairs["-s"] = []string{o.SafetyClip}
	}
	if o.Threads != 6 && executableStem(executable) == "supernova" {
		pairs["-T"] = []string{strconv.Itoa(o.Threads)}
	}
	if o.UGenPluginsPath != "" {
		pairs["-U"] = []string{o.UGenPluginsPath}
	} else if isBundled(executable) {
		pairs["-U"] = []string{bundledPluginsPath()}
	}
	if o.Verbosity > 0 {
		pairs["-v"] = []string{strconv.Itoa(o.Verbosity)}
	}
	setInt(pairs, "-w", o.WireBufferCount, 64)

	flags := make([]string, 0, len(pairs))
	for flag := range pairs {
		flags = append(flags, flag)
	}
	sort.Strings(flags)

	tokens := []string{executable}
	for _, flag := range flags {
		tokens = append(tokens, flag)
		tokens = append(tokens, pairs[flag]...)
	}
	return tokens
}

func setInt(pairs map[string][]string, flag string, value, def int) {
	if value != def {
		pairs[flag] = []string{strconv.Itoa(value)}
	}
}

func executableStem(executable string) string {
	base := filepath.Base(executable)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NonrealtimeRender describes an offline render job.
type NonrealtimeRender struct {
	ScorePath    string
	InputPath    string // empty for no input file
	OutputPath   string
	SampleRate   int
	HeaderFormat string // aiff, wav, ...
	SampleFormat string // int16, int24, float, ...
}

// EncodeNonrealtime returns the invocation for an offline render of job.
// Realtime-only flags are never emitted.
func (o Options) EncodeNonrealtime(executable string, job NonrealtimeRender) []string {
	o.Realtime = false
	tokens := o.Encode(executable)

	input := job.InputPath
	if input == "" {
		input = "_"
	}
	sampleRate := job.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	header := job.HeaderFormat
	if header == "" {
		header = "aiff"
	}
	sample := job.SampleFormat
	if sample == "" {
		sample = "int24"
	}
	return append(tokens, "-N", job.ScorePath, input, job.OutputPath, strconv.Itoa(sampleRate), header, sample)
}

// WorldParams maps the options onto the parameter names of the embedded
// engine's World constructor. Optional parameters are only present when set.
func (o Options) WorldParams() map[string]any {
	params := map[string]any{
		"num_audio_bus_channels":   o.AudioBusChannelCount,
		"num_input_bus_channels":   o.InputBusChannelCount,
		"num_output_bus_channels":  o.OutputBusChannelCount,
		"num_control_bus_channels": o.ControlBusChannelCount,
		"block_size":               o.BlockSize,
		"num_buffers":              o.BufferCount,
		"max_nodes":                o.MaximumNodeCount,
		"max_graph_defs":           o.MaximumSynthDefCount,
		"max_wire_bufs":            o.WireBufferCount,
		"num_rgens":                o.RandomNumberGeneratorCount,
		"max_logins":               o.MaximumLogins,
		"realtime_memory_size":     o.MemorySize,
		"load_graph_defs":          boolToInt(o.LoadSynthDefs),
		"memory_locking":           o.MemoryLocking,
		"realtime":                 o.Realtime,
		"verbosity":                o.Verbosity,
		"rendezvous":               o.ZeroConfiguration,
		"shared_memory_id":         o.Port,
	}
	if o.SampleRate != 0 {
		params["preferred_sample_rate"] = o.SampleRate
	}
	if o.HardwareBufferSize != 0 {
		params["preferred_hardware_buffer_size"] = o.HardwareBufferSize
	}
	if o.UGenPluginsPath != "" {
		params["ugen_plugins_path"] = o.UGenPluginsPath
	}
	if o.RestrictedPath != "" {
		params["restricted_path"] = o.RestrictedPath
	}
	if o.Password != "" {
		params["password"] = o.Password
	}
	if o.InputDevice != "" {
		params["in_device_name"] = o.InputDevice
	}
	if o.OutputDevice != "" {
		params["out_device_name"] = o.OutputDevice
	}
	if o.InputStreamMask != "" {
		params["input_streams_enabled"] = o.InputStreamMask
	}
	if o.OutputStreamMask != "" {
		params["output_streams_enabled"] = o.OutputStreamMask
	}
	if o.SafetyClip != "" {
		params["safety_clip_threshold"] = o.safetyClipThreshold()
	}
	return params
}

func (o Options) safetyClipThreshold() float64 {
	if o.SafetyClip == SafetyClipInfinite {
		return math.Inf(1)
	}
	v, err := strconv.ParseFloat(o.SafetyClip, 64)
	if err != nil {
		return math.Inf(1)
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
