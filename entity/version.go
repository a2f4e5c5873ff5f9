package entity

import (
	"fmt"
	"strconv"
)

// TombstoneValue is the wire rendering of a deletion.
const TombstoneValue = "-1"

// Version is an opaque write-generation stamp. Stamps are only compared for
// equality; no ordering is assumed.
type Version struct {
	s    string
	tomb bool
}

// NewVersion wraps a rendered stamp. The literal TombstoneValue is NOT
// interpreted here; use ParseVersion for feed input.
func NewVersion(s string) Version { return Version{s: s} }

// Tombstone returns the deletion marker.
func Tombstone() Version { return Version{s: TombstoneValue, tomb: true} }

// ParseVersion decodes a feed-rendered stamp, mapping TombstoneValue to a tombstone.
func ParseVersion(s string) Version {
	if s == TombstoneValue {
		return Tombstone()
	}
	return Version{s: s}
}

// VersionOf renders a version column value.
func VersionOf(v any) Version {
	switch x := v.(type) {
	case Version:
		return x
	case string:
		return Version{s: x}
	case int:
		return Version{s: strconv.Itoa(x)}
	case int32:
		return Version{s: strconv.FormatInt(int64(x), 10)}
	case int64:
		return Version{s: strconv.FormatInt(x, 10)}
	case uint32:
		return Version{s: strconv.FormatUint(uint64(x), 10)}
	case uint64:
		return Version{s: strconv.FormatUint(x, 10)}
	case fmt.Stringer:
		return Version{s: x.String()}
	default:
		return Version{s: fmt.Sprint(x)}
	}
}

// Equal reports strict equality. A tombstone is unequal to everything,
// including another tombstone.
func (v Version) Equal(o Version) bool {
	if v.tomb || o.tomb {
		return false
	}
	return v.s == o.s
}

func (v Version) IsTombstone() bool { return v.tomb }

func (v Version) IsZero() bool { return !v.tomb && v.s == "" }

// String renders the stamp as it appears on the wire.
func (v Version) String() string { return v.s }
