// Package snapshotenc wraps a badgerkv.Engine snapshot stream with
// authenticated encryption at rest, so a backup written to shared or
// untrusted storage cannot be read or tampered with without the cluster's
// snapshot key.
package snapshotenc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/jmapstore/engine/pkg/crypto/adaptive"
)

// chunkSize bounds how much plaintext one sealed frame covers, so encrypting
// a multi-gigabyte snapshot never requires buffering it whole in memory.
const chunkSize = 4 << 20

// SaltLength is the Argon2id salt size DeriveKey expects and produces.
const SaltLength = 16

const keyLen = 32

// DeriveKey derives a 32-byte snapshot encryption key from an operator
// passphrase using Argon2id. If salt is nil a fresh random salt is
// generated; callers must persist the returned salt alongside the snapshot
// to re-derive the same key for decryption.
func DeriveKey(passphrase []byte, salt []byte) (key, usedSalt []byte, err error) {
	if salt == nil {
		salt = make([]byte, SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("snapshotenc: generate salt: %w", err)
		}
	}
	key = argon2.IDKey(passphrase, salt, 3, 64*1024, 4, keyLen)
	return key, salt, nil
}

// DeriveSubkey derives length bytes from masterKey via HKDF-SHA256, used to
// split one cluster-wide master key into independent snapshot and blob
// encryption keys without storing either separately.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < keyLen {
		return nil, fmt.Errorf("snapshotenc: master key too short")
	}
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshotenc: derive subkey: %w", err)
	}
	return key, nil
}

// Encrypt reads plaintext snapshot bytes from src and writes sealed,
// chunked ciphertext frames to dst: each frame is
// [sealed_len:4][sealed_chunk...], sealed with key and additionalData
// bound to the frame's position so frames cannot be reordered or spliced
// from a different snapshot without detection.
func Encrypt(dst io.Writer, src io.Reader, key []byte, additionalData string) error {
	c, err := adaptive.New(key)
	if err != nil {
		return fmt.Errorf("snapshotenc: init cipher: %w", err)
	}

	buf := make([]byte, chunkSize)
	var index uint64
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			if err := writeChunk(dst, c, buf[:n], additionalData, index); err != nil {
				return err
			}
			index++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("snapshotenc: read snapshot: %w", readErr)
		}
	}
}

// Decrypt reverses Encrypt, writing recovered plaintext to dst.
func Decrypt(dst io.Writer, src io.Reader, key []byte, additionalData string) error {
	c, err := adaptive.New(key)
	if err != nil {
		return fmt.Errorf("snapshotenc: init cipher: %w", err)
	}

	var lenBuf [4]byte
	var index uint64
	for {
		if _, err := io.ReadFull(src, lenBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("snapshotenc: read frame header: %w", err)
		}
		sealedLen := binary.BigEndian.Uint32(lenBuf[:])
		sealed := make([]byte, sealedLen)
		if _, err := io.ReadFull(src, sealed); err != nil {
			return fmt.Errorf("snapshotenc: read frame body: %w", err)
		}
		plaintext, err := c.Decrypt(sealed, frameAAD(additionalData, index))
		if err != nil {
			return fmt.Errorf("snapshotenc: decrypt frame %d: %w", index, err)
		}
		if _, err := dst.Write(plaintext); err != nil {
			return fmt.Errorf("snapshotenc: write plaintext: %w", err)
		}
		index++
	}
}

func writeChunk(dst io.Writer, c adaptive.Cipher, plaintext []byte, additionalData string, index uint64) error {
	sealed, err := c.Encrypt(plaintext, frameAAD(additionalData, index))
	if err != nil {
		return fmt.Errorf("snapshotenc: encrypt frame %d: %w", index, err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := dst.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("snapshotenc: write frame header: %w", err)
	}
	if _, err := dst.Write(sealed); err != nil {
		return fmt.Errorf("snapshotenc: write frame body: %w", err)
	}
	return nil
}

func frameAAD(additionalData string, index uint64) []byte {
	aad := make([]byte, len(additionalData)+8)
	copy(aad, additionalData)
	binary.BigEndian.PutUint64(aad[len(additionalData):], index)
	return aad
}
