package rate

import (
	"fmt"
	"strings"
)

// Operation identifies which action an attempt budget applies to.
type Operation uint8

const (
	// OpLogin throttles credential checks.
	OpLogin Operation = iota
	// OpIntrospect throttles token introspection.
	OpIntrospect
	// OpGetProfile throttles profile reads.
	OpGetProfile
	// OpGeneric is the catch-all bucket.
	OpGeneric
)

// String returns the segment used in store keys.
func (o Operation) String() string {
	switch o {
	case OpLogin:
		return "login"
	case OpIntrospect:
		return "introspect"
	case OpGetProfile:
		return "get_profile"
	case OpGeneric:
		return "generic"
	default:
		return fmt.Sprintf("op_%d", uint8(o))
	}
}

// ParseOperation is the inverse of Operation.String.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "login":
		return OpLogin, nil
	case "introspect":
		return OpIntrospect, nil
	case "get_profile":
		return OpGetProfile, nil
	case "generic":
		return OpGeneric, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// Key addresses one attempt budget.
type Key struct {
	Op       Operation
	Identity string
}

const (
	// DefaultPrefix starts every store key.
	DefaultPrefix = "rate_limit"
	// DefaultSuffixLength is how many trailing identity characters are kept.
	DefaultSuffixLength = 5

	blockedSuffix = ":blocked"
)

// KeyBuilder renders Keys into store key strings. The zero value is not usable;
// use NewKeyBuilder.
type KeyBuilder struct {
	prefix       string
	suffixLength int
	hashTag      bool
}

// NewKeyBuilder returns a builder. An empty prefix falls back to DefaultPrefix;
// suffixLength <= 0 keeps the whole identity.
func NewKeyBuilder(prefix string, suffixLength int) KeyBuilder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return KeyBuilder{prefix: prefix, suffixLength: suffixLength}
}

// WithHashTag wraps the identity suffix in {} so that the counter and block keys
// of one Key map to the same Redis Cluster slot.
func (b KeyBuilder) WithHashTag() KeyBuilder {
	b.hashTag = true
	return b
}

// Counter returns the attempt counter key.
func (b KeyBuilder) Counter(k Key) string {
	suffix := b.suffix(k.Identity)
	if b.hashTag {
		suffix = "{" + suffix + "}"
	}
	return b.prefix + ":" + k.Op.String() + ":" + suffix
}

// Blocked returns the block flag key.
func (b KeyBuilder) Blocked(k Key) string {
	return b.Counter(k) + blockedSuffix
}

func (b KeyBuilder) suffix(identity string) string {
	if b.suffixLength <= 0 {
		return identity
	}
	runes := []rune(identity)
	if len(runes) <= b.suffixLength {
		return identity
	}
	return string(runes[len(runes)-b.suffixLength:])
}
