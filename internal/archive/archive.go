// Package archive keeps a raw copy of every page fetched from upstream so
// a cycle can be replayed or audited.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/hash/sha256"
	"github.com/verkehr-aachen/frost-crawler/internal/storage"
)

// Archive writes fetched pages to a BlobStore under
// prefix/YYYY/MM/DD/HH/<digest>.json. It satisfies frost.Recorder.
type Archive struct {
	blobs  storage.BlobStore
	prefix string
	clock  clockwork.Clock
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New builds an Archive. A nil clock uses the real clock.
func New(blobs storage.BlobStore, prefix string, clock clockwork.Clock, logger *zap.Logger) (*Archive, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
		hasher: sha256.New(),
		logger: logger,
	}, nil
}

// Key returns the object key for a page. Identical content fetched from
// the same URL within one hour maps to the same key.
func (a *Archive) Key(url string, body []byte) string {
	now := a.clock.Now().UTC()
	name := a.hasher.Hash([]byte(url), body) + ".json"
	return path.Join(a.prefix, now.Format("2006/01/02/15"), name)
}

// Record stores one page.
func (a *Archive) Record(ctx context.Context, url string, body []byte) error {
	key := a.Key(url, body)
	uri, err := a.blobs.PutObject(ctx, storage.Object{
		Key:         key,
		ContentType: "application/json",
		Metadata:    map[string]string{"source_url": url},
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("archive page %s: %w", url, err)
	}
	a.logger.Debug("archived page", zap.String("url", url), zap.String("uri", uri))
	return nil
}
