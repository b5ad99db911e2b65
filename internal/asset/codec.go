package asset

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"modsync/internal/syncerr"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var keySalt = []byte("modsync/asset/v1")

// Encoding describes which transforms were applied to a stored blob.
type Encoding struct {
	Compressed bool
	Encrypted  bool
}

func (e Encoding) suffix() string {
	switch {
	case e.Compressed && e.Encrypted:
		return ".ze"
	case e.Compressed:
		return ".z"
	case e.Encrypted:
		return ".e"
	default:
		return ""
	}
}

// BlobKey is content addressed: the plaintext checksum plus an encoding
// suffix, so a reader can undo the transforms and verify from the key alone.
func BlobKey(checksum string, enc Encoding) string {
	return checksum + enc.suffix()
}

func ParseBlobKey(key string) (string, Encoding, error) {
	checksum, suffix, _ := strings.Cut(key, ".")

	var enc Encoding
	switch suffix {
	case "":
	case "z":
		enc.Compressed = true
	case "e":
		enc.Encrypted = true
	case "ze":
		enc = Encoding{Compressed: true, Encrypted: true}
	default:
		return "", enc, syncerr.New(syncerr.KindInvalidArgument, "unknown blob encoding %q", suffix)
	}

	if len(checksum) != 64 {
		return "", enc, syncerr.New(syncerr.KindInvalidArgument, "invalid blob key %q", key)
	}

	return checksum, enc, nil
}

type codec struct {
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	aead cipher.AEAD
}

func newCodec(passphrase string, maxSize int64) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	var opts []zstd.DOption
	if maxSize > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(maxSize)))
	}

	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	c := &codec{enc: enc, dec: dec}

	if passphrase != "" {
		c.aead, err = newAEAD(passphrase)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), keySalt, 1, 32*1024, 4, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return aead, nil
}

func seal(aead cipher.AEAD, data []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, data, nil), nil
}

func open(aead cipher.AEAD, payload []byte) ([]byte, error) {
	ns := aead.NonceSize()
	if len(payload) < ns+aead.Overhead() {
		return nil, syncerr.New(syncerr.KindChecksumMismatch, "encrypted blob is truncated")
	}

	plain, err := aead.Open(nil, payload[:ns], payload[ns:], nil)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindChecksumMismatch, err, "failed to decrypt blob")
	}

	return plain, nil
}

// encode applies enc to data. aead overrides the codec's default key when set.
func (c *codec) encode(data []byte, enc Encoding, aead cipher.AEAD) ([]byte, error) {
	if aead == nil {
		aead = c.aead
	}

	out := data
	if enc.Compressed {
		out = c.enc.EncodeAll(out, make([]byte, 0, len(out)/2))
	}

	if enc.Encrypted {
		if aead == nil {
			return nil, syncerr.New(syncerr.KindInvalidArgument, "encryption requested without a key")
		}

		var err error
		if out, err = seal(aead, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// decode reverses enc. Encrypted payloads are tried against aead first and
// then the codec's default key, so blobs written before a project had its
// own key stay readable.
func (c *codec) decode(payload []byte, enc Encoding, aead cipher.AEAD) ([]byte, error) {
	out := payload
	if enc.Encrypted {
		var keys []cipher.AEAD
		for _, k := range []cipher.AEAD{aead, c.aead} {
			if k != nil {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return nil, syncerr.New(syncerr.KindInvalidArgument, "blob is encrypted but no key is configured")
		}

		var err error
		for _, k := range keys {
			var plain []byte
			if plain, err = open(k, payload); err == nil {
				out = plain
				break
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if enc.Compressed {
		plain, err := c.dec.DecodeAll(out, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, syncerr.Wrap(syncerr.KindAssetTooLarge, syncerr.ErrAssetTooLarge, "blob decompresses past the size limit")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decompress blob: %w", err)
		}
		out = plain
	}

	return out, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// GenerateKey returns a random project key.
func GenerateKey() (string, error) {
	b := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate project key: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// SealKey encrypts a project key under secret for handing to a collaborator.
func SealKey(secret, key string) (string, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return "", err
	}

	sealed, err := seal(aead, []byte(key))
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func OpenKey(secret, sealed string) (string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindInvalidArgument, err, "malformed sealed key")
	}

	aead, err := newAEAD(secret)
	if err != nil {
		return "", err
	}

	key, err := open(aead, payload)
	if err != nil {
		return "", err
	}

	return string(key), nil
}
