package detectors

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Backend selects the face detection algorithm.
type Backend int

const (
	// BackendHaar is OpenCV's Haar cascade classifier.
	BackendHaar Backend = iota
	// BackendYOLO is a darknet YOLOv3 network run through OpenCV's dnn module.
	BackendYOLO
	// BackendPigo is the pure Go pixel intensity comparison cascade.
	BackendPigo
)

var backendNames = map[Backend]string{
	BackendHaar: "haar",
	BackendYOLO: "yolo",
	BackendPigo: "pigo",
}

// ParseBackend accepts either the numeric mode ("0", "1", "2") or a backend name.
//
// Arguments:
//   - s: The mode or name, matched case-insensitively.
//
// Returns:
//   - Backend: The selected backend.
//   - error: An error if s names no backend.
//
// @example
// b, _ := ParseBackend("1") // BackendYOLO
func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		b := Backend(n)
		if _, ok := backendNames[b]; ok {
			return b, nil
		}
		return 0, errors.Errorf("invalid detection mode %d, expected 0=haar, 1=yolo or 2=pigo", n)
	}
	for b, name := range backendNames {
		if name == s {
			return b, nil
		}
	}
	return 0, errors.Errorf("unknown detection backend %q", s)
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return "backend(" + strconv.Itoa(int(b)) + ")"
}

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	_, ok := backendNames[b]
	return ok
}

// MarshalText encodes the backend by name.
func (b Backend) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, errors.Errorf("invalid backend %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText accepts anything ParseBackend does.
func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
