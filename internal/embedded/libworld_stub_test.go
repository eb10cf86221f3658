//go:build !libscsynth

package embedded

import (
	"errors"
	"testing"
)

func TestNewLibWorldUnavailable(t *testing.T) {
	if _, err := NewLibWorld(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewLibWorld() err = %v, want ErrUnavailable", err)
	}
}
