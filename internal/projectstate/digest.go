package projectstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Iron-Ham/worklog/internal/model"
)

// contentDigest is the sha256 of the RFC 8785 canonical form of ps with
// updated_at cleared, so two states that differ only in when they were
// computed hash the same.
func contentDigest(ps *model.ProjectState) (string, error) {
	c := *ps
	c.UpdatedAt = time.Time{}
	raw, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
