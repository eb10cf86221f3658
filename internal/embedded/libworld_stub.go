//go:build !libscsynth

package embedded

// NewLibWorld returns ErrUnavailable; build with -tags libscsynth to link
// against libscsynth.
func NewLibWorld() (World, error) {
	return nil, ErrUnavailable
}
