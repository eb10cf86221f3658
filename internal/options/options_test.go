package options

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewValidatesAudioBusCapacity(t *testing.T) {
	tests := []struct {
		name    string
		audio   int
		inputs  int
		outputs int
		wantErr bool
	}{
		{"insufficient", 15, 8, 8, true},
		{"exactly enough", 16, 8, 8, false},
		{"plenty", 1024, 8, 8, false},
		{"no hardware buses", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(
				WithAudioBusChannels(tt.audio),
				WithInputChannels(tt.inputs),
				WithOutputChannels(tt.outputs),
			)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	o := Default()
	o.AudioBusChannelCount = 1
	o.MaximumLogins = 0
	o.Protocol = "sctp"
	o.SafetyClip = "loud"

	var cfgErr *ConfigurationError
	if !errors.As(o.Validate(), &cfgErr) {
		t.Fatal("expected *ConfigurationError")
	}
	if len(cfgErr.Errors) != 4 {
		t.Errorf("got %d errors, want 4: %v", len(cfgErr.Errors), cfgErr.Errors)
	}
}

func TestRangesAreDisjointAndBounded(t *testing.T) {
	o, err := New(WithMaximumLogins(7))
	if err != nil {
		t.Fatal(err)
	}

	for _, kind := range []Resource{AudioBuses, Buffers, ControlBuses, SyncIDs} {
		t.Run(kind.String(), func(t *testing.T) {
			for i := 0; i < o.MaximumLogins; i++ {
				minI, maxI, err := o.Range(kind, i)
				if err != nil {
					t.Fatalf("Range(%v, %d): %v", kind, i, err)
				}
				if minI < 0 || maxI > o.Capacity(kind) || minI > maxI {
					t.Errorf("client %d range [%d, %d) outside capacity %d", i, minI, maxI, o.Capacity(kind))
				}
				for j := 0; j < o.MaximumLogins; j++ {
					if i == j {
						continue
					}
					minJ, maxJ, _ := o.Range(kind, j)
					if minI < maxJ && minJ < maxI {
						t.Errorf("clients %d [%d,%d) and %d [%d,%d) overlap", i, minI, maxI, j, minJ, maxJ)
					}
				}
			}
		})
	}
}

func TestRangeAudioBusesSkipHardware(t *testing.T) {
	o, err := New(WithMaximumLogins(2))
	if err != nil {
		t.Fatal(err)
	}
	minID, maxID, err := o.Range(AudioBuses, 1)
	if err != nil {
		t.Fatal(err)
	}
	// 1024 - 16 hardware buses = 1008 private, 504 per client
	if minID != 16+504 || maxID != 16+1008 {
		t.Errorf("got [%d, %d), want [520, 1024)", minID, maxID)
	}
}

func TestRangeRejectsClientOutOfBounds(t *testing.T) {
	o := Default()
	for _, client := range []int{-1, o.MaximumLogins} {
		if _, _, err := o.Range(Buffers, client); err == nil {
			t.Errorf("Range(Buffers, %d) expected error", client)
		}
	}
}

func withBundleDir(t *testing.T, dir string) {
	t.Helper()
	orig := bundleDir
	bundleDir = func() string { return dir }
	t.Cleanup(func() { bundleDir = orig })
}

func TestEncodeDefaults(t *testing.T) {
	withBundleDir(t, t.TempDir())

	got := Default().Encode("scsynth")
	want := []string{"scsynth", "-R", "0", "-l", "1", "-u", "57110"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeSortedNonDefaults(t *testing.T) {
	withBundleDir(t, t.TempDir())

	o := Default()
	o.Protocol = ProtocolTCP
	o.Port = 57111
	o.MemoryLocking = true
	o.InputDevice = "in"
	o.Threads = 4
	o.InputBusChannelCount = 2
	o.Verbosity = 1

	got := o.Encode("/usr/bin/supernova")
	want := []string{
		"/usr/bin/supernova",
		"-H", "in", "",
		"-L",
		"-R", "0",
		"-T", "4",
		"-i", "2",
		"-l", "1",
		"-t", "57111",
		"-v", "1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}

	// Threads only apply to supernova.
	for _, tok := range o.Encode("/usr/bin/scsynth") {
		if tok == "-T" {
			t.Error("scsynth invocation must not carry -T")
		}
	}
}

func TestEncodeIsStable(t *testing.T) {
	withBundleDir(t, t.TempDir())

	o := Default()
	o.Password = "secret"
	o.SafetyClip = SafetyClipInfinite
	o.SampleRate = 48000
	first := o.Encode("scsynth")
	for i := 0; i < 10; i++ {
		if got := o.Encode("scsynth"); !reflect.DeepEqual(got, first) {
			t.Fatalf("Encode() not stable: %q vs %q", got, first)
		}
	}
}

func TestEncodeNonrealtimeOmitsNetworkFlags(t *testing.T) {
	withBundleDir(t, t.TempDir())

	got := Default().EncodeNonrealtime("scsynth", NonrealtimeRender{
		ScorePath:  "score.osc",
		OutputPath: "out.aiff",
	})
	want := []string{"scsynth", "-N", "score.osc", "_", "out.aiff", "44100", "aiff", "int24"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EncodeNonrealtime() = %q, want %q", got, want)
	}
}

func TestEncodeBundledPluginsFallback(t *testing.T) {
	dir := t.TempDir()
	withBundleDir(t, dir)
	exe := filepath.Join(dir, "scsynth")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	tokens := Default().Encode(exe)
	want := filepath.Join(dir, "plugins")
	for i, tok := range tokens {
		if tok == "-U" {
			if tokens[i+1] != want {
				t.Errorf("-U = %q, want %q", tokens[i+1], want)
			}
			return
		}
	}
	t.Errorf("bundled executable should carry -U, got %q", tokens)
}

func TestWorldParams(t *testing.T) {
	o := Default()
	o.SafetyClip = SafetyClipInfinite
	o.InputDevice = "Built-in Microphone"
	o.SampleRate = 48000

	params := o.WorldParams()
	checks := map[string]any{
		"num_audio_bus_channels": 1024,
		"num_buffers":            1024,
		"realtime_memory_size":   8192,
		"load_graph_defs":        1,
		"shared_memory_id":       DefaultPort,
		"in_device_name":         "Built-in Microphone",
		"preferred_sample_rate":  48000,
	}
	for key, want := range checks {
		if got := params[key]; got != want {
			t.Errorf("params[%q] = %v, want %v", key, got, want)
		}
	}
	if clip, _ := params["safety_clip_threshold"].(float64); !math.IsInf(clip, 1) {
		t.Errorf("safety_clip_threshold = %v, want +Inf", params["safety_clip_threshold"])
	}
	for _, absent := range []string{"password", "out_device_name", "restricted_path", "preferred_hardware_buffer_size"} {
		if _, ok := params[absent]; ok {
			t.Errorf("params[%q] should be absent when unset", absent)
		}
	}
}

func TestParseFile(t *testing.T) {
	data := []byte(`
[engine]
port = 57200
input_bus_channel_count = 2
memory_locking = true
`)
	o, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if o.Port != 57200 || o.InputBusChannelCount != 2 || !o.MemoryLocking {
		t.Errorf("unexpected options %+v", o)
	}
	if o.BufferCount != 1024 {
		t.Errorf("BufferCount = %d, absent keys should keep defaults", o.BufferCount)
	}

	if _, err := Parse([]byte("[engine]\naudio_bus_channel_count = 4\n")); err == nil {
		t.Error("expected validation error from file")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	o := Default()
	o.Port = 57300
	data, err := Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != o {
		t.Errorf("got %+v, want %+v", got, o)
	}
}

func TestFindExecutablePrefersOverride(t *testing.T) {
	withBundleDir(t, t.TempDir())
	exe := filepath.Join(t.TempDir(), "my-scsynth")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FindExecutable(exe)
	if err != nil {
		t.Fatal(err)
	}
	if got != exe {
		t.Errorf("FindExecutable() = %q, want %q", got, exe)
	}
}

func TestFindExecutableFromEnvironment(t *testing.T) {
	withBundleDir(t, t.TempDir())
	dir := t.TempDir()
	exe := filepath.Join(dir, "custom-engine")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvServerExecutable, exe)

	got, err := FindExecutable("")
	if err != nil {
		t.Fatal(err)
	}
	if got != exe {
		t.Errorf("FindExecutable() = %q, want %q", got, exe)
	}
}
