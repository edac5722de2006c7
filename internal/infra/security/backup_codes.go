package security

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const (
	// DefaultBackupCodeCount is how many recovery codes an enrollment issues.
	DefaultBackupCodeCount = 10

	backupCodeLength    = 10
	backupCodeGroupSize = 5

	// Ambiguous glyphs (I, O, 0, 1) are excluded for manual entry. The
	// 32-character alphabet also divides 256 evenly, so sampling random
	// bytes modulo its length carries no bias.
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// BackupCodes generates, hashes, and consumes single-use recovery codes.
// Codes are stored only as credential hashes; consumption removes the
// matched hash from the returned collection.
type BackupCodes struct {
	hasher port.PasswordHasher
	count  int
}

// NewBackupCodes builds a manager issuing count codes per enrollment,
// defaulting to DefaultBackupCodeCount when count is non-positive.
func NewBackupCodes(hasher port.PasswordHasher, count int) *BackupCodes {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	return &BackupCodes{hasher: hasher, count: count}
}

// Generate returns freshly minted plaintext codes in the grouped
// XXXXX-XXXXX form. The caller shows them to the user exactly once.
func (b *BackupCodes) Generate() ([]string, error) {
	codes := make([]string, 0, b.count)
	for i := 0; i < b.count; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashAll hashes each plaintext code independently for persistence.
func (b *BackupCodes) HashAll(codes []string) ([]string, error) {
	if b.hasher == nil {
		return nil, fmt.Errorf("backup codes: hasher not configured")
	}

	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := b.hasher.Hash(normalizeBackupCode(code))
		if err != nil {
			return nil, fmt.Errorf("backup codes: hash code: %w", err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// Consume checks the submitted code against every stored hash without
// short-circuiting on the first match, and returns whether a hash matched
// along with the collection to persist. The input slice is never mutated;
// on no match the returned collection is the input unchanged.
func (b *BackupCodes) Consume(storedHashes []string, submitted string) (bool, []string, error) {
	if b.hasher == nil {
		return false, storedHashes, fmt.Errorf("backup codes: hasher not configured")
	}

	normalized := normalizeBackupCode(submitted)
	if normalized == "" {
		return false, storedHashes, nil
	}

	matched := -1
	for i, hash := range storedHashes {
		ok, err := b.hasher.Verify(normalized, hash)
		if err != nil {
			return false, storedHashes, fmt.Errorf("backup codes: verify code: %w", err)
		}
		if ok && matched < 0 {
			matched = i
		}
	}

	if matched < 0 {
		return false, storedHashes, nil
	}

	remaining := make([]string, 0, len(storedHashes)-1)
	remaining = append(remaining, storedHashes[:matched]...)
	remaining = append(remaining, storedHashes[matched+1:]...)
	return true, remaining, nil
}

func generateBackupCode() (string, error) {
	raw := make([]byte, backupCodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("backup codes: generate: %w", err)
	}

	var sb strings.Builder
	sb.Grow(backupCodeLength + 1)
	for i, by := range raw {
		if i > 0 && i%backupCodeGroupSize == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(backupCodeAlphabet[int(by)%len(backupCodeAlphabet)])
	}

	return sb.String(), nil
}

// normalizeBackupCode canonicalises user input: trims, uppercases, and
// restores the group separator when it was omitted.
func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, " ", "")
	if code == "" {
		return ""
	}

	if !strings.Contains(code, "-") && len(code) == backupCodeLength {
		code = code[:backupCodeGroupSize] + "-" + code[backupCodeGroupSize:]
	}
	return code
}
