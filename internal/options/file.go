package options

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// fileLayout is the on-disk shape of an engine options file:
//
//	[engine]
//	port = 57111
//	input_bus_channel_count = 2
type fileLayout struct {
	Engine Options `toml:"engine"`
}

// FromFile reads the [engine] table of a TOML file on top of Default() and
// validates the result. Keys absent from the file keep their defaults.
func FromFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read engine options: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML engine options, see FromFile.
func Parse(data []byte) (Options, error) {
	layout := fileLayout{Engine: Default()}
	if err := toml.Unmarshal(data, &layout); err != nil {
		return Options{}, fmt.Errorf("failed to parse engine options: %w", err)
	}
	return layout.Engine.With()
}

// Marshal encodes the options as an engine options file.
func Marshal(o Options) ([]byte, error) {
	return toml.Marshal(fileLayout{Engine: o})
}
