package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"docvault/internal/domain"
)

// VerifyingReader recomputes the content digest as plaintext flows through
// and compares it against the stored checksum at EOF. This is a second line
// of defense behind per-chunk AEAD: it catches logical corruption such as a
// checksum column bit flip that the chunk tags cannot see.
type VerifyingReader struct {
	src        io.Reader
	digest     hash.Hash
	expected   string
	revisionID string
	verified   bool
}

// NewVerifyingReader wraps src with checksum verification against the
// expected hex sha256.
func NewVerifyingReader(src io.Reader, expected, revisionID string) *VerifyingReader {
	return &VerifyingReader{
		src:        src,
		digest:     sha256.New(),
		expected:   expected,
		revisionID: revisionID,
	}
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	n, err := v.src.Read(p)
	if n > 0 {
		v.digest.Write(p[:n])
	}
	if errors.Is(err, io.EOF) && !v.verified {
		v.verified = true
		actual := hex.EncodeToString(v.digest.Sum(nil))
		if actual != v.expected {
			return n, &domain.IntegrityError{
				RevisionID: v.revisionID,
				Expected:   v.expected,
				Actual:     actual,
			}
		}
	}
	return n, err
}
