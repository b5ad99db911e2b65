// Package asset moves binary assets between a workspace and a backend:
// compress, encrypt and upload on the way out, the exact inverse on the way in.
package asset

import (
	"context"
	"crypto/cipher"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"modsync/internal/logger"
	"modsync/internal/model"
	"modsync/internal/syncerr"
	"modsync/internal/util"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const HandleTTL = 365 * 24 * time.Hour

// BlobStore is the part of a backend the pipeline needs.
type BlobStore interface {
	UploadBlob(ctx context.Context, projectID, key string, data []byte) error
	DownloadBlob(ctx context.Context, projectID, key string) ([]byte, error)
	BlobURL(projectID, key string) string
	ParseBlobURL(url string) (projectID, key string, err error)
}

type Options struct {
	Compress   bool
	Encrypt    bool
	Passphrase string
	MaxSize    int64
}

type projectKey struct {
	key  string
	aead cipher.AEAD
}

type Pipeline struct {
	opts  Options
	codec *codec
	now   func() time.Time

	mu   sync.RWMutex
	keys map[string]projectKey
}

func New(opts Options) (*Pipeline, error) {
	if opts.Encrypt && opts.Passphrase == "" {
		return nil, syncerr.New(syncerr.KindInvalidArgument, "encryption enabled without a key")
	}

	c, err := newCodec(opts.Passphrase, opts.MaxSize)
	if err != nil {
		return nil, err
	}

	return &Pipeline{opts: opts, codec: c, now: time.Now, keys: make(map[string]projectKey)}, nil
}

// SetProjectKey makes key the cipher key for projectID's blobs in place of
// the configured passphrase. Setting the current key again is a no-op.
func (p *Pipeline) SetProjectKey(projectID, key string) error {
	if key == "" {
		return syncerr.New(syncerr.KindInvalidArgument, "empty key for project %s", projectID)
	}

	p.mu.RLock()
	cur, ok := p.keys[projectID]
	p.mu.RUnlock()
	if ok && cur.key == key {
		return nil
	}

	aead, err := newAEAD(key)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.keys[projectID] = projectKey{key: key, aead: aead}
	p.mu.Unlock()

	return nil
}

func (p *Pipeline) aead(projectID string) cipher.AEAD {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.keys[projectID].aead
}

func (p *Pipeline) Close() {
	p.codec.close()
}

func (p *Pipeline) MaxSize() int64 {
	return p.opts.MaxSize
}

func (p *Pipeline) encoding() Encoding {
	return Encoding{Compressed: p.opts.Compress, Encrypted: p.opts.Encrypt}
}

// CheckSize fails with AssetTooLarge when size exceeds the configured limit.
func (p *Pipeline) CheckSize(name string, size int64) error {
	if p.opts.MaxSize > 0 && size > p.opts.MaxSize {
		return syncerr.Wrap(syncerr.KindAssetTooLarge, syncerr.ErrAssetTooLarge,
			"%s is %s, limit is %s", name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.opts.MaxSize)))
	}

	return nil
}

// Upload transforms data and stores it, returning the blob key.
func (p *Pipeline) Upload(ctx context.Context, store BlobStore, projectID string, data []byte) (string, error) {
	if err := p.CheckSize("asset", int64(len(data))); err != nil {
		return "", err
	}

	enc := p.encoding()
	key := BlobKey(util.HashBytes(data), enc)

	payload, err := p.codec.encode(data, enc, p.aead(projectID))
	if err != nil {
		return "", err
	}

	if err := store.UploadBlob(ctx, projectID, key, payload); err != nil {
		return "", syncerr.Wrap(syncerr.KindBackend, err, "failed to upload blob %s", key)
	}

	logger.Log.Debug("blob uploaded",
		zap.String("project", projectID),
		zap.String("key", key),
		zap.String("size", humanize.IBytes(uint64(len(data)))),
		zap.String("stored", humanize.IBytes(uint64(len(payload)))))

	return key, nil
}

// UploadRaw stores data untransformed under its checksum.
func (p *Pipeline) UploadRaw(ctx context.Context, store BlobStore, projectID string, data []byte) (string, error) {
	key := BlobKey(util.HashBytes(data), Encoding{})
	if err := store.UploadBlob(ctx, projectID, key, data); err != nil {
		return "", syncerr.Wrap(syncerr.KindBackend, err, "failed to upload blob %s", key)
	}

	return key, nil
}

// Download fetches key, reverses its transforms and verifies the checksum.
func (p *Pipeline) Download(ctx context.Context, store BlobStore, projectID, key string) ([]byte, error) {
	checksum, enc, err := ParseBlobKey(key)
	if err != nil {
		return nil, err
	}

	payload, err := store.DownloadBlob(ctx, projectID, key)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindNotFound {
			return nil, err
		}
		return nil, syncerr.Wrap(syncerr.KindBackend, err, "failed to download blob %s", key)
	}

	data, err := p.codec.decode(payload, enc, p.aead(projectID))
	if err != nil {
		return nil, err
	}

	if got := util.HashBytes(data); got != checksum {
		return nil, syncerr.Wrap(syncerr.KindChecksumMismatch, syncerr.ErrChecksumMismatch,
			"blob %s: expected %s, got %s", key, checksum, got)
	}

	return data, nil
}

// UploadFile pushes a local file through the pipeline and returns its CDN handle.
func (p *Pipeline) UploadFile(ctx context.Context, store BlobStore, projectID, path string) (model.CDNHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.CDNHandle{}, syncerr.Wrap(syncerr.KindInvalidArgument, err, "cannot read asset %s", path)
	}

	if err := p.CheckSize(path, info.Size()); err != nil {
		return model.CDNHandle{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return model.CDNHandle{}, fmt.Errorf("failed to open asset: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return model.CDNHandle{}, fmt.Errorf("failed to read asset: %w", err)
	}

	return p.UploadAsset(ctx, store, projectID, data)
}

func (p *Pipeline) UploadAsset(ctx context.Context, store BlobStore, projectID string, data []byte) (model.CDNHandle, error) {
	key, err := p.Upload(ctx, store, projectID, data)
	if err != nil {
		return model.CDNHandle{}, err
	}

	checksum, _, _ := ParseBlobKey(key)
	mime := mimetype.Detect(data).String()
	now := p.now().UTC()

	return model.CDNHandle{
		URL:        store.BlobURL(projectID, key),
		ProjectID:  projectID,
		Key:        key,
		Checksum:   checksum,
		Size:       int64(len(data)),
		MimeType:   mime,
		UploadedAt: now,
		ExpiresAt:  now.Add(HandleTTL),
		Metadata: model.AssetMetadata{
			Size:     int64(len(data)),
			MimeType: mime,
			Checksum: checksum,
		},
	}, nil
}

// DownloadAsset resolves a CDN URL and returns the verified content.
func (p *Pipeline) DownloadAsset(ctx context.Context, store BlobStore, url string) ([]byte, error) {
	projectID, key, err := store.ParseBlobURL(url)
	if err != nil {
		return nil, err
	}

	return p.Download(ctx, store, projectID, key)
}
