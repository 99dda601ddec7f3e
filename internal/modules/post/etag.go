package post

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/inkwave/core/internal/models"
)

// postETag is the strong validator for a single post: its content hash,
// quoted. Identical content always yields an identical ETag, so clients
// can skip re-ingesting unchanged posts.
func postETag(p *models.PostModel) string {
	return `"` + p.ContentHash + `"`
}

// listETag fingerprints one page of a listing: the identity and content
// hash of every row plus the page boundary. Any post changing, appearing
// or dropping off the page changes the value.
func listETag(posts []models.PostModel, nextCursor string) string {
	h := sha256.New()
	for _, p := range posts {
		io.WriteString(h, p.ID)
		io.WriteString(h, "\x00")
		io.WriteString(h, p.ContentHash)
		io.WriteString(h, "\x00")
	}
	io.WriteString(h, nextCursor)
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// etagMatches implements If-None-Match comparison for strong validators;
// a weak W/ prefix on the client value is tolerated.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
