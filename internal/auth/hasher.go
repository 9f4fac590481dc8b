// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// MaxPasswordBytes bounds the input to the hash function.
const MaxPasswordBytes = 1024

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// A malformed hash is a mismatch, not an error. The error is non-nil
	// only when ctx ends before the comparison could run.
	Verify(ctx context.Context, password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be recomputed with the
	// current algorithm and parameters.
	NeedsUpgrade(hash string) bool
}

// HasherConfig tunes Argon2idHasher. Zero fields take the defaults above.
type HasherConfig struct {
	Time          uint32
	MemoryKiB     uint32
	Threads       uint8
	MaxConcurrent int
}

// Argon2idHasher implements PasswordHasher using argon2id. It verifies legacy
// bcrypt hashes so existing accounts can be upgraded on login.
type Argon2idHasher struct {
	time    uint32
	memory  uint32
	threads uint8
	sem     *semaphore.Weighted
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(cfg HasherConfig) *Argon2idHasher {
	h := &Argon2idHasher{
		time:    cfg.Time,
		memory:  cfg.MemoryKiB,
		threads: cfg.Threads,
	}
	if h.time == 0 {
		h.time = argon2Time
	}
	if h.memory == 0 {
		h.memory = argon2Memory
	}
	if h.threads == 0 {
		h.threads = argon2Threads
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	h.sem = semaphore.NewWeighted(int64(limit))
	return h
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", validationError("password", "password cannot be empty")
	}
	if len(password) > MaxPasswordBytes {
		return "", validationError("password", "password must be at most %d bytes", MaxPasswordBytes)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("AUTH_HASH_CANCELLED").Wrap(err)
	}
	start := time.Now()
	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argon2KeyLen)
	h.sem.Release(1)
	hashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	if isBcryptHash(encodedHash) {
		return h.verifyBcrypt(ctx, password, encodedHash)
	}

	params, salt, expected, ok := decodeArgon2id(encodedHash)
	if !ok {
		return false, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("AUTH_HASH_CANCELLED").Wrap(err)
	}
	start := time.Now()
	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	h.sem.Release(1)
	hashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Argon2idHasher) verifyBcrypt(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("AUTH_HASH_CANCELLED").Wrap(err)
	}
	defer h.sem.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil, nil
}

// NeedsUpgrade returns true for non-argon2id hashes and for argon2id hashes
// computed with weaker parameters than this hasher uses.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	params, _, _, ok := decodeArgon2id(encodedHash)
	if !ok {
		return true
	}
	return params.time < h.time || params.memory < h.memory || params.threads < h.threads
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// decodeArgon2id parses a PHC-encoded argon2id hash. ok is false for any
// malformed or out-of-range input.
func decodeArgon2id(encodedHash string) (params argon2Params, salt, key []byte, ok bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, false
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return params, nil, nil, false
	}
	// Refuse parameters that would let a stored hash exhaust memory or CPU.
	if threads == 0 || threads > 255 || iterations == 0 || iterations > 16 || memory == 0 || memory > 1<<21 {
		return params, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, false
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return params, nil, nil, false
	}

	return argon2Params{time: iterations, memory: memory, threads: uint8(threads)}, salt, key, true
}
