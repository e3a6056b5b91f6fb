// Package adaptive provides adaptive encryption for jmapstore-server.
//
// This package implements a cipher abstraction that selects an
// encryption algorithm by target architecture.
//
// Supported Algorithms:
//
//   - AES-GCM: chosen by New on amd64 and arm64
//   - ChaCha20-Poly1305: chosen by New on every other architecture
//
// Features:
//
//   - Architecture-based selection: New checks GOARCH; it does not probe
//     CPU features
//   - AEAD: Authenticated encryption with associated data
//   - Keys are used as given; the package does no key derivation
//   - Thread Safety: All cipher operations are thread-safe
//
// Usage:
//
//	cipher, err := adaptive.New(key)
//	encrypted, err := cipher.Encrypt(plaintext, aad)
//	plaintext, err := cipher.Decrypt(encrypted, aad)
//
// @adr AD-0201
package adaptive
