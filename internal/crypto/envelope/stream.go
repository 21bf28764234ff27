package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"docvault/internal/domain"
)

const (
	// DefaultChunkSize is the plaintext bytes sealed per AEAD chunk.
	DefaultChunkSize = 64 * 1024

	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12

	// frame = uint32 sealed length, flag byte, sealed bytes
	frameHeaderSize = 5
	flagFinal       = 0x01

	// maxSealedChunk guards decryption against absurd frame lengths from a
	// corrupted stream before any allocation happens.
	maxSealedChunk = 16 << 20

	// MaxChunkSize caps the plaintext chunk size so that every sealed frame
	// (chunk + GCM tag) stays below maxSealedChunk and remains decryptable.
	MaxChunkSize = maxSealedChunk - 1024
)

// Crypto performs chunked streaming AEAD. Each chunk is sealed
// independently under a nonce derived from the revision's nonce base and
// the chunk index, so at most one chunk is buffered at a time.
type Crypto struct {
	chunkSize int
}

// New creates a Crypto with the given plaintext chunk size. Sizes outside
// (0, MaxChunkSize] fall back to DefaultChunkSize or MaxChunkSize so that
// encrypted streams always stay readable.
func New(chunkSize int) *Crypto {
	switch {
	case chunkSize <= 0:
		chunkSize = DefaultChunkSize
	case chunkSize > MaxChunkSize:
		chunkSize = MaxChunkSize
	}
	return &Crypto{chunkSize: chunkSize}
}

// chunkNonce derives the nonce for chunk idx: the big-endian counter XORed
// into the tail of the base. DEKs are per-revision, so (key, nonce) pairs
// never repeat across streams.
func chunkNonce(base []byte, idx uint64) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, base)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], idx)
	for i := 0; i < 8; i++ {
		nonce[NonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

// chunkAAD binds the chunk index and the final-chunk marker into the
// authentication tag. Reordered, replayed, or truncated chunks fail to
// authenticate.
func chunkAAD(idx uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, idx)
	if final {
		aad[8] = flagFinal
	}
	return aad
}

// StreamEncrypt reads plaintext from r, seals it chunk by chunk, and writes
// framed ciphertext to w. It returns the hex sha256 of the plaintext and
// the plaintext size. The final chunk (possibly empty) carries the final
// marker, so a truncated stream is detectable on decrypt.
func (c *Crypto) StreamEncrypt(ctx context.Context, dek, nonceBase []byte, r io.Reader, w io.Writer) (checksum string, size int64, err error) {
	gcm, err := newGCM(dek, nonceBase)
	if err != nil {
		return "", 0, err
	}

	digest := sha256.New()
	buf := make([]byte, c.chunkSize)
	sealed := make([]byte, 0, c.chunkSize+gcm.Overhead())
	header := make([]byte, frameHeaderSize)

	var idx uint64
	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		n, readErr := io.ReadFull(r, buf)
		final := false
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			n = 0
			final = true
		case errors.Is(readErr, io.ErrUnexpectedEOF):
			final = true
		default:
			return "", 0, fmt.Errorf("read plaintext: %w", readErr)
		}

		digest.Write(buf[:n])
		size += int64(n)

		out := gcm.Seal(sealed[:0], chunkNonce(nonceBase, idx), buf[:n], chunkAAD(idx, final))
		binary.BigEndian.PutUint32(header[:4], uint32(len(out)))
		header[4] = 0
		if final {
			header[4] = flagFinal
		}
		if _, err := w.Write(header); err != nil {
			return "", 0, fmt.Errorf("write frame header: %w", err)
		}
		if _, err := w.Write(out); err != nil {
			return "", 0, fmt.Errorf("write sealed chunk: %w", err)
		}

		if final {
			break
		}
		idx++
	}

	return hex.EncodeToString(digest.Sum(nil)), size, nil
}

// StreamDecrypt returns a reader yielding plaintext chunk by chunk. A chunk
// that fails authentication aborts the stream with AuthenticationError;
// bytes from an unauthenticated chunk are never surfaced.
func (c *Crypto) StreamDecrypt(dek, nonceBase []byte, src io.Reader) (io.Reader, error) {
	gcm, err := newGCM(dek, nonceBase)
	if err != nil {
		return nil, err
	}
	return &decryptReader{gcm: gcm, nonceBase: nonceBase, src: src}, nil
}

func newGCM(dek, nonceBase []byte) (cipher.AEAD, error) {
	if len(dek) != KeySize {
		return nil, fmt.Errorf("dek must be %d bytes, got %d", KeySize, len(dek))
	}
	if len(nonceBase) != NonceSize {
		return nil, fmt.Errorf("nonce base must be %d bytes, got %d", NonceSize, len(nonceBase))
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

type decryptReader struct {
	gcm       cipher.AEAD
	nonceBase []byte
	src       io.Reader
	buf       []byte
	idx       uint64
	done      bool
	err       error
}

func (d *decryptReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	for len(d.buf) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.fill(); err != nil {
			d.err = err
			return 0, err
		}
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (d *decryptReader) fill() error {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(d.src, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Stream ended before the final-marked chunk arrived.
			return &domain.AuthenticationError{Chunk: int64(d.idx), Err: errors.New("stream truncated")}
		}
		return fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:4])
	if length > maxSealedChunk || int(length) < d.gcm.Overhead() {
		return &domain.AuthenticationError{Chunk: int64(d.idx), Err: fmt.Errorf("invalid frame length %d", length)}
	}
	final := header[4]&flagFinal != 0

	sealed := make([]byte, length)
	if _, err := io.ReadFull(d.src, sealed); err != nil {
		return &domain.AuthenticationError{Chunk: int64(d.idx), Err: errors.New("stream truncated")}
	}

	plain, err := d.gcm.Open(sealed[:0], chunkNonce(d.nonceBase, d.idx), sealed, chunkAAD(d.idx, final))
	if err != nil {
		return &domain.AuthenticationError{Chunk: int64(d.idx), Err: err}
	}

	d.buf = plain
	d.idx++
	if final {
		d.done = true
	}
	return nil
}
