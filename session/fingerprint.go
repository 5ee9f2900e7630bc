package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"
)

// Fingerprint identifies the content of a file at staging time.
type Fingerprint struct {
	Hash    [sha256.Size]byte
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// NewFingerprint fingerprints data read from a file described by info.
func NewFingerprint(data []byte, info os.FileInfo) Fingerprint {
	fp := Fingerprint{Hash: sha256.Sum256(data), Size: int64(len(data))}
	if info != nil {
		fp.ModTime = info.ModTime()
		fp.Mode = info.Mode().Perm()
	}
	return fp
}

// Matches reports whether other has the same content. Modification time is
// informational only; a touched but unchanged file is still fresh.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Size == other.Size && f.Hash == other.Hash
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f.Hash[:8])
}
