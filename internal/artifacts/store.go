package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/receipts-backend/pkg/storage/gcs"
	"github.com/angelmondragon/receipts-backend/pkg/storage/local"
)

const pdfContentType = "application/pdf"

// Location records where a stored artifact can be found again.
type Location struct {
	CloudURL string
	Object   string
	Path     string
}

// Store is the durable home for rendered receipt PDFs. Put is called at most
// once per receipt; Get recovers previously stored bytes for the email step.
type Store interface {
	Put(ctx context.Context, name string, pdf []byte) (Location, error)
	Get(ctx context.Context, loc Location) ([]byte, error)
	// SignedReadURL returns a provider-signed download URL when the backing
	// storage supports it; ok is false otherwise.
	SignedReadURL(loc Location, ttl time.Duration) (url string, ok bool, err error)
}

type gcsAPI interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, content []byte) error
	DownloadObject(ctx context.Context, bucket, object string) ([]byte, error)
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
	DefaultBucket() string
}

// CloudStore keeps artifacts in a GCS bucket.
type CloudStore struct {
	client gcsAPI
	bucket string
}

// NewCloudStore wraps the GCS client as an artifact store.
func NewCloudStore(client *gcs.Client) (*CloudStore, error) {
	if client == nil {
		return nil, errors.New("gcs client is required")
	}
	return &CloudStore{client: client, bucket: client.DefaultBucket()}, nil
}

func (s *CloudStore) Put(ctx context.Context, name string, pdf []byte) (Location, error) {
	object := "receipts/" + name
	if err := s.client.UploadObject(ctx, s.bucket, object, pdfContentType, pdf); err != nil {
		return Location{}, fmt.Errorf("uploading artifact: %w", err)
	}

	loc := Location{Object: object}
	// best effort; the object is stored either way and a URL can be re-signed later
	if url, err := s.client.SignedReadURL(s.bucket, object, 7*24*time.Hour); err == nil {
		loc.CloudURL = url
	}
	return loc, nil
}

func (s *CloudStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	if loc.Object == "" {
		return nil, errors.New("artifact object missing")
	}
	return s.client.DownloadObject(ctx, s.bucket, loc.Object)
}

func (s *CloudStore) SignedReadURL(loc Location, ttl time.Duration) (string, bool, error) {
	if loc.Object == "" {
		return "", false, errors.New("artifact object missing")
	}
	url, err := s.client.SignedReadURL(s.bucket, loc.Object, ttl)
	if err != nil {
		return "", true, err
	}
	return url, true, nil
}

// LocalStore keeps artifacts on the filesystem. Used when no bucket is
// configured; download URLs fall back to the token-protected endpoint.
type LocalStore struct {
	files *local.Store
}

// NewLocalStore wraps the filesystem store as an artifact store.
func NewLocalStore(files *local.Store) (*LocalStore, error) {
	if files == nil {
		return nil, errors.New("local store is required")
	}
	return &LocalStore{files: files}, nil
}

func (s *LocalStore) Put(ctx context.Context, name string, pdf []byte) (Location, error) {
	path, err := s.files.Write(ctx, name, pdf)
	if err != nil {
		return Location{}, err
	}
	return Location{Path: path}, nil
}

func (s *LocalStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	if loc.Path == "" {
		return nil, errors.New("artifact path missing")
	}
	return s.files.Read(ctx, loc.Path)
}

func (s *LocalStore) SignedReadURL(Location, time.Duration) (string, bool, error) {
	return "", false, nil
}
