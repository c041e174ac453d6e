package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/storage"
)

// MediaWorker mirrors listing photos into object storage so they survive the
// source listing being taken down. A listing image is considered mirrored
// when its URL already points at our bucket.
type MediaWorker struct {
	store      *storage.PostgresStore
	httpClient *http.Client
	uploader   *storage.S3Uploader
	userAgent  string
	logFunc    LogFunc
}

// NewMediaWorker creates a new media worker
func NewMediaWorker(store *storage.PostgresStore, uploader *storage.S3Uploader, client *http.Client, userAgent string) *MediaWorker {
	return &MediaWorker{
		store:      store,
		httpClient: client,
		uploader:   uploader,
		userAgent:  userAgent,
		logFunc:    NoOpLogger,
	}
}

func (w *MediaWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Mirror downloads one image, hashes it, uploads it under a content-addressed
// key and returns the public URL of the mirrored copy.
func (w *MediaWorker) Mirror(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	ext := guessExtension(imageURL, resp.Header.Get("Content-Type"))
	key := fmt.Sprintf("media/%s/%s%s", contentHash[:2], contentHash, ext)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	return w.uploader.PublicURL(key), nil
}

// guessExtension determines file extension from URL or content-type
func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	if isImageExt(ext) {
		return ext
	}

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// Run starts the media worker loop
func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *MediaWorker) processBatch(ctx context.Context, batchSize int) {
	prefix := w.uploader.PublicPrefix()

	listings, err := w.store.ListListingsWithImages(ctx, prefix, batchSize)
	if err != nil {
		log.Printf("Media worker: query error: %v", err)
		return
	}

	if len(listings) == 0 {
		return
	}

	log.Printf("Media worker: processing %d listings", len(listings))

	var mirrored, failed int
	for _, listing := range listings {
		if ctx.Err() != nil {
			return
		}

		images := make([]string, len(listing.Images))
		changed := false
		for i, imageURL := range listing.Images {
			images[i] = imageURL
			if imageURL == "" || strings.HasPrefix(imageURL, prefix) {
				continue
			}

			mirroredURL, err := w.Mirror(ctx, imageURL)
			if err != nil {
				log.Printf("Media worker: failed %s: %v", imageURL, err)
				failed++
				continue
			}
			images[i] = mirroredURL
			changed = true
			mirrored++

			// Rate limit between downloads
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}

		if changed {
			if err := w.store.UpdateListingImages(ctx, listing.ID, images); err != nil {
				log.Printf("Media worker: failed to update %s: %v", listing.ID, err)
			}
		}
	}

	if mirrored > 0 || failed > 0 {
		log.Printf("Media worker: mirrored %d, failed %d", mirrored, failed)
		w.logFunc(models.LogLevelInfo, "media", fmt.Sprintf("Mirrored %d images (%d failed)", mirrored, failed))
	}
}
