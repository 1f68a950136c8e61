// Package handle defines the weak, copyable references handed out by the
// slot-map stores in this module.
package handle

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// NullIndex is the slot index carried by a handle that refers to nothing.
const NullIndex = math.MaxUint32

// tokenDigits is the fixed number of hex digits in a serialized handle.
const tokenDigits = 16

var ErrMalformedToken = errors.New("malformed handle token")

// Handle encodes a slot index (lower 32 bits), the generation of the slot when
// the handle was issued (bits 32-47) and the type tag of the issuing store
// (upper 16 bits). Handles carry no ownership.
type Handle uint64

// New packs a handle. Only stores should call it; callers receive handles from
// Insert.
func New(index uint32, generation uint16, tag uint16) Handle {
	return Handle(uint64(tag)<<48 | uint64(generation)<<32 | uint64(index))
}

// Null returns the handle that refers to nothing for the given tag.
func Null(tag uint16) Handle {
	return New(NullIndex, 0, tag)
}

// Index extracts the slot index.
func (h Handle) Index() uint32 {
	return uint32(h & 0xFFFFFFFF)
}

// Generation extracts the slot generation.
func (h Handle) Generation() uint16 {
	return uint16(h >> 32)
}

// Tag extracts the type tag.
func (h Handle) Tag() uint16 {
	return uint16(h >> 48)
}

// IsNull reports whether h is the sentinel handle.
func (h Handle) IsNull() bool {
	return h.Index() == NullIndex
}

// Compare orders handles by their packed value.
func Compare(a, b Handle) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// NextGeneration returns the generation following g. Zero is skipped so that
// the zero Handle is never valid.
func NextGeneration(g uint16) uint16 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}

// String renders the opaque token form, e.g. 0x0002000100000007.
func (h Handle) String() string {
	s := strconv.FormatUint(uint64(h), 16)
	return "0x" + strings.Repeat("0", tokenDigits-len(s)) + s
}

// Parse decodes a token produced by String. Underscore digit separators are
// accepted.
func Parse(token string) (Handle, error) {
	digits, ok := strings.CutPrefix(token, "0x")
	if !ok {
		return 0, eris.Wrapf(ErrMalformedToken, "token %q lacks 0x prefix", token)
	}
	digits = strings.ReplaceAll(digits, "_", "")
	if len(digits) != tokenDigits {
		return 0, eris.Wrapf(ErrMalformedToken, "token %q has %d digits, want %d", token, len(digits), tokenDigits)
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, eris.Wrapf(ErrMalformedToken, "token %q: %v", token, err)
	}
	return Handle(v), nil
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
