// -*- tab-width:2 -*-
package sim

import (
	"errors"
	"testing"
)

func TestCheckLogLevel(t *testing.T) {
	for _, level := range LogLevels {
		if err := CheckLogLevel(level); err != nil {
			t.Errorf("%s: %v", level, err)
		}
	}

	for _, level := range []string{"", "loud", "ALL", "debug"} {
		if err := CheckLogLevel(level); !errors.Is(err, ErrBadLogLevel) {
			t.Errorf("%q: %v", level, err)
		}
	}
}
