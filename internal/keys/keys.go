// Package keys derives storage keys from entity identities.
package keys

import (
	"crypto/sha256"
	"fmt"

	"github.com/archivekc/oliphant/entity"
)

// maxRaw bounds the rendered uid embedded in a key; longer uids are replaced
// by a short hash so provider key limits are never hit.
const maxRaw = 200

// Ledger returns the ledger key for uid: "ledger:<ns>:<table>#<key>".
func Ledger(ns string, uid entity.UID) string { return compose("ledger:"+ns, uid) }

// Entry returns the cache key for uid: "entity:<ns>:<table>#<key>".
func Entry(ns string, uid entity.UID) string { return compose("entity:"+ns, uid) }

func compose(prefix string, uid entity.UID) string {
	s := uid.String()
	if len(s) <= maxRaw {
		return prefix + ":" + s
	}
	sum := sha256.Sum256([]byte(s))
	// prefix + ":" + table + "#h:" + first 16 hex chars
	return fmt.Sprintf("%s:%s#h:%x", prefix, uid.Table, sum[:8])
}
