// Package minio provides a TrackListing backed by an S3-compatible object
// store. Tracks live under one prefix per category ("brown/", "rain/").
package minio

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/quietroom/quietroom/internal/domain"
	"github.com/quietroom/quietroom/internal/ports"
)

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Listing lists playable tracks from the object store.
type Listing struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// audioExtensions are the object suffixes treated as playable tracks.
var audioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
}

// presignExpiry is the lifetime of generated direct URLs. Long enough for
// one listening session; listings are refreshed on every initialization.
const presignExpiry = 24 * time.Hour

// NewListing creates a listing client. The connection is not probed here;
// a dead endpoint surfaces as ErrListingUnavailable on the first list call.
func NewListing(cfg Config, logger *slog.Logger) (*Listing, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Listing{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// ListTracks returns every playable object under the category prefix,
// sorted by key for a stable base ordering.
func (l *Listing) ListTracks(ctx context.Context, category domain.Category) ([]domain.Track, error) {
	prefix := string(category) + "/"

	objects := l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var tracks []domain.Track
	for object := range objects {
		if object.Err != nil {
			if l.logger != nil {
				l.logger.Warn("track listing failed",
					slog.String("category", string(category)),
					slog.String("error", object.Err.Error()))
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrListingUnavailable, object.Err)
		}
		if !audioExtensions[strings.ToLower(path.Ext(object.Key))] {
			continue
		}

		track := trackFromKey(category, object.Key)
		track.PlayableURL = l.presign(ctx, object.Key)
		tracks = append(tracks, track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].SourceKey < tracks[j].SourceKey
	})

	if l.logger != nil {
		l.logger.Debug("tracks listed",
			slog.String("category", string(category)),
			slog.Int("count", len(tracks)))
	}
	return tracks, nil
}

// presign produces a time-limited direct URL for an object, used when no
// content-delivery endpoint is configured. Signing is local, no round trip.
func (l *Listing) presign(ctx context.Context, key string) string {
	u, err := l.client.PresignedGetObject(ctx, l.bucket, key, presignExpiry, nil)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("presign failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return ""
	}
	return u.String()
}

// trackFromKey derives track metadata from an object key like
// "rain/gentle-roof-rain.mp3".
func trackFromKey(category domain.Category, key string) domain.Track {
	base := strings.TrimSuffix(path.Base(key), path.Ext(key))
	title := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " "))
	if title == "" {
		title = base
	}
	return domain.Track{
		ID:        key,
		Title:     title,
		Category:  category,
		SourceKey: key,
	}
}

// Verify that Listing implements the TrackListing interface
var _ ports.TrackListing = (*Listing)(nil)
