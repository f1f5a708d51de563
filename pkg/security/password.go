package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

const argonVersion = argon2.Version

var (
	// ErrInvalidHash is returned for strings that are not PHC-encoded argon2id hashes.
	ErrInvalidHash = errors.New("invalid argon2id hash")
	// ErrIncompatibleVersion is returned for hashes produced by another argon2 revision.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

var b64 = base64.RawStdEncoding

// ArgonParams are the cost settings encoded into every stored hash.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// ParamsFromConfig bounds the configured costs to values safe for a shared API host.
func ParamsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      bounded(cfg.ArgonMemoryKB, 8, 512*1024),
		Time:        bounded(cfg.ArgonTime, 1, 10),
		Parallelism: uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     bounded(cfg.ArgonSaltLen, 8, 64),
		KeyLen:      bounded(cfg.ArgonKeyLen, 16, 64),
	}
}

// HashPassword derives an argon2id key and encodes it in PHC string form:
// $argon2id$v=19$m=<kb>,t=<passes>,p=<threads>$<salt>$<key>
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	p := ParamsFromConfig(cfg)

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)

	var sb strings.Builder
	fmt.Fprintf(&sb, "$argon2id$v=%d$m=%d,t=%d,p=%d$", argonVersion, p.Memory, p.Time, p.Parallelism)
	sb.WriteString(b64.EncodeToString(salt))
	sb.WriteByte('$')
	sb.WriteString(b64.EncodeToString(key))
	return sb.String(), nil
}

// VerifyPassword reports whether password produces the key stored in encoded.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker costs than cfg asks for.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	stored, _, _, err := parseHash(encoded)
	if err != nil {
		return true
	}
	want := ParamsFromConfig(cfg)
	return stored.Memory < want.Memory || stored.Time < want.Time || stored.KeyLen < want.KeyLen
}

func parseHash(encoded string) (ArgonParams, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	if version != argonVersion {
		return ArgonParams{}, nil, nil, ErrIncompatibleVersion
	}

	var p ArgonParams
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidHash
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}

func bounded(v, lo, hi int) uint32 {
	switch {
	case v < lo:
		return uint32(lo)
	case v > hi:
		return uint32(hi)
	}
	return uint32(v)
}
