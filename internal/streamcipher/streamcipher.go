// Package streamcipher decrypts arbitrary byte ranges of a per-track
// AES-128-CTR ciphertext stream given only the absolute byte offset of the
// chunk, without needing to have decrypted any preceding bytes.
package streamcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/auricle/auricle/internal/keyvault"
)

// ErrCipherInit reports a failure to construct the underlying AES-128
// block cipher; it should not occur with a validly-shaped UnwrappedKey.
var ErrCipherInit = errors.New("streamcipher: cipher init failed")

// DecryptChunk decrypts ciphertext that begins at absolute byteOffset in
// the track's ciphertext stream. It is a pure function of its arguments:
// decrypting contiguous, non-overlapping chunks at their true absolute
// offsets and concatenating the results reproduces decrypting the whole
// stream from offset 0.
//
// The counter block is 128 bits, big-endian: bytes [0:8] are the stream
// nonce, bytes [8:16] are the big-endian block index (byteOffset/16).
func DecryptChunk(key [keyvault.KeySize]byte, nonce [keyvault.NonceSize]byte, ciphertext []byte, byteOffset uint64) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipherInit, err)
	}

	blockIndex := byteOffset / aes.BlockSize
	skip := int(byteOffset % aes.BlockSize)

	var counter [aes.BlockSize]byte
	copy(counter[0:8], nonce[:])
	binary.BigEndian.PutUint64(counter[8:16], blockIndex)

	stream := cipher.NewCTR(block, counter[:])

	if skip == 0 {
		out := make([]byte, len(ciphertext))
		stream.XORKeyStream(out, ciphertext)
		return out, nil
	}

	padded := make([]byte, skip+len(ciphertext))
	copy(padded[skip:], ciphertext)
	stream.XORKeyStream(padded, padded)
	return padded[skip:], nil
}
