package identity

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	backupCodeCount = 10
	backupCodeBytes = 5
)

// generateBackupCodes returns plaintext codes (xxxx-xxxx) and their hashes.
func generateBackupCodes(cost int) (codes, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := strings.ToLower(base32.StdEncoding.EncodeToString(raw))
		hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code[:4]+"-"+code[4:])
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}

// consumeBackupCode returns hashes without the one matching code.
func consumeBackupCode(hashes []string, code string) ([]string, bool) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	if normalized == "" {
		return hashes, false
	}
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(normalized)) == nil {
			remaining := make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			return append(remaining, hashes[i+1:]...), true
		}
	}
	return hashes, false
}
