package visual

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/snapdiff/internal/baseline"
)

// ErrInvalidName is returned when the screenshot name is empty.
var ErrInvalidName = errors.New("screenshot name must not be empty")

// ErrBaselineMissing is returned in compare mode when no baseline
// exists for the name; run update mode to create one.
var ErrBaselineMissing = baseline.ErrBaselineMissing

// MismatchError reports a visual difference beyond the allowed
// tolerance. The diff artifact at DiffPath highlights the mismatched
// pixels.
type MismatchError struct {
	Name          string
	MismatchRatio float64
	AllowedRatio  float64
	DiffPath      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("visual changes detected for %q: %.2f%% of pixels differ, allowed %.2f%% (diff saved to %s)",
		e.Name, e.MismatchRatio*100, e.AllowedRatio*100, e.DiffPath)
}
