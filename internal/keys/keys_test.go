package keys

import (
	"strings"
	"testing"

	"github.com/archivekc/oliphant/entity"
)

func TestKeysAreNamespaced(t *testing.T) {
	u := entity.UID{Table: "orders", Key: "7"}
	if got := Ledger("app", u); got != "ledger:app:orders#7" {
		t.Fatalf("Ledger=%q", got)
	}
	if got := Entry("app", u); got != "entity:app:orders#7" {
		t.Fatalf("Entry=%q", got)
	}
}

func TestLongKeysAreHashedDeterministically(t *testing.T) {
	u := entity.UID{Table: "blobs", Key: strings.Repeat("k", 500)}
	a, b := Entry("ns", u), Entry("ns", u)
	if a != b {
		t.Fatalf("non-deterministic: %q vs %q", a, b)
	}
	if len(a) > 64 || !strings.HasPrefix(a, "entity:ns:blobs#h:") {
		t.Fatalf("unexpected hashed key %q", a)
	}
	other := Entry("ns", entity.UID{Table: "blobs", Key: strings.Repeat("k", 499)})
	if other == a {
		t.Fatalf("distinct uids collided")
	}
}
