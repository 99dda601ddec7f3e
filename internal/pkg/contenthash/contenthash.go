// Package contenthash computes the deterministic fingerprint of a post's
// externally observable representation. The hash is the change-detection
// primitive for the whole pipeline: webhook payloads carry it so receivers
// can deduplicate, and the read API derives ETags from it.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Version prefixes every hash so the canonical serialization can evolve
// without silently colliding with values stored under the old scheme.
const Version = "v1"

// Fields are the observable inputs to the fingerprint. Internal timestamps
// and counters are deliberately absent: the hash must change iff content a
// consumer can see changes.
type Fields struct {
	Title          string
	BodyMD         string
	SEODescription string
	Slug           string
}

// Compute returns the namespaced fingerprint, e.g. "v1:9f86d08...".
// It is a pure function: identical input yields the identical value across
// processes and hosts. No per-process salt is involved.
func Compute(f Fields) string {
	h := sha256.New()
	for _, part := range []string{f.Title, f.BodyMD, f.SEODescription, f.Slug} {
		// Length-prefix each field so ("ab","c") never collides with ("a","bc").
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return Version + ":" + hex.EncodeToString(h.Sum(nil))
}
