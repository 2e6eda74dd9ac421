package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/creditlens/creditlens/internal/core/domain"
)

// Fingerprint derives the content-addressed cache key for a request.
// The owning user id is part of the digest so identical uploads from
// different accounts never collide. A caller-supplied cache key replaces
// the content digest but stays scoped to the user.
func Fingerprint(req domain.AnalysisRequest) string {
	h := sha256.New()
	h.Write([]byte(req.UserID))
	h.Write([]byte{0})

	if key := strings.TrimSpace(req.CacheKey); key != "" {
		h.Write([]byte("key:"))
		h.Write([]byte(key))
	} else if req.MediaType.IsText() {
		h.Write([]byte(strings.TrimSpace(req.Text)))
	} else {
		h.Write(req.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
