package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier. Tests may replace it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }

// Prefixed returns a new identifier carrying a vendor style prefix, e.g. "vapi_<uuid>".
func Prefixed(prefix string) string { return prefix + "_" + New() }

// Hex returns a 32 character hex identifier, used for simulated ledger hashes.
func Hex() string { return strings.ReplaceAll(New(), "-", "") }
