package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

var errArgon2Format = errors.New("invalid argon2id digest")

// Argon2Hasher produces PHC-format Argon2id digests. The pepper is mixed into
// every input and never stored alongside the digest.
type Argon2Hasher struct {
	Pepper string
}

func NewArgon2Hasher(pepper string) *Argon2Hasher {
	return &Argon2Hasher{Pepper: pepper}
}

// Hash returns $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func (h *Argon2Hasher) Hash(raw string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(raw+h.Pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

func (h *Argon2Hasher) Verify(raw, digest string) bool {
	p, err := parseArgon2(digest)
	if err != nil {
		return false
	}

	computed := argon2.IDKey(
		[]byte(raw+h.Pepper),
		p.salt,
		p.iterations,
		p.memory,
		p.parallelism,
		uint32(len(p.hash)), // #nosec G115 - bounded by parseArgon2
	)
	return subtle.ConstantTimeCompare(computed, p.hash) == 1
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parseArgon2(digest string) (argon2Params, error) {
	var p argon2Params

	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return p, errArgon2Format
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, fmt.Errorf("%w: parameters: %v", errArgon2Format, err)
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return p, errArgon2Format
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, fmt.Errorf("%w: salt: %v", errArgon2Format, err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, fmt.Errorf("%w: hash: %v", errArgon2Format, err)
	}
	if len(p.hash) == 0 || len(p.hash) > 1024 {
		return p, errArgon2Format
	}
	return p, nil
}
