// Package ids defines the identifier type shared by the local store, the
// outboxes and the sync engine.
//
// Records created while the backend is unreachable are keyed by a locally
// minted temporary id until the server assigns a real one. Temporary ids
// carry a reserved prefix so the two spaces can never collide; the prefix is
// inspected exactly once, when an ID is parsed or minted, and from then on
// the tag travels with the value.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TempPrefix is the reserved prefix of locally minted identifiers. The
// backend never issues ids in this space.
const TempPrefix = "tmp-"

// ID is a tagged entity identifier: either a server-assigned remote id or a
// locally minted temporary one.
type ID struct {
	value string
	temp  bool
}

// NewTemp mints a fresh temporary id.
func NewTemp() ID {
	return ID{value: TempPrefix + uuid.NewString(), temp: true}
}

// Remote wraps a server-assigned id.
func Remote(v string) ID {
	return ID{value: v}
}

// Parse classifies a raw id string. The prefix check happens here and
// nowhere else.
func Parse(v string) ID {
	return ID{value: v, temp: strings.HasPrefix(v, TempPrefix)}
}

// IsTemp reports whether the id is locally minted.
func (id ID) IsTemp() bool { return id.temp }

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return id.value == "" }

func (id ID) String() string { return id.value }

// MustRemote returns the raw value, panicking if the id is still temporary.
// Used where a remote id is an invariant, e.g. direct server patches.
func (id ID) MustRemote() string {
	if id.temp {
		panic(fmt.Sprintf("ids: %s is not a remote id", id.value))
	}
	return id.value
}
