package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a version.
var ErrSnapshotNotFound = errors.New("template snapshot not found")

// Snapshotter keeps immutable copies of every template version.
type Snapshotter interface {
	Put(ctx context.Context, t *Template) error
	Load(ctx context.Context, id string, version int) (*Template, error)
}

// S3API is the subset of the S3 client used by S3Snapshotter.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Snapshotter writes templates/{id}/v{version}.json objects.
// With an empty bucket every call is a no-op.
type S3Snapshotter struct {
	bucket string
	client S3API
	logger *logging.Logger
}

func NewS3Snapshotter(client S3API, bucket string, logger *logging.Logger) *S3Snapshotter {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Snapshotter{bucket: bucket, client: client, logger: logger}
}

// Enabled reports whether a bucket and client are configured.
func (s *S3Snapshotter) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

func snapshotKey(id string, version int) string {
	return fmt.Sprintf("templates/%s/v%d.json", id, version)
}

func (s *S3Snapshotter) Put(ctx context.Context, t *Template) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("templates: marshal snapshot: %w", err)
	}
	key := snapshotKey(t.ID, t.Version)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("templates: s3 put %s: %w", key, err)
	}
	s.logger.Debug("template snapshot stored", "template_id", t.ID, "version", t.Version, "s3_key", key)
	return nil
}

func (s *S3Snapshotter) Load(ctx context.Context, id string, version int) (*Template, error) {
	if !s.Enabled() {
		return nil, ErrSnapshotNotFound
	}
	key := snapshotKey(id, version)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("templates: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", key, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("templates: decode %s: %w", key, err)
	}
	return &t, nil
}

// MemorySnapshotter keeps snapshots in process memory.
type MemorySnapshotter struct {
	mu    sync.RWMutex
	items map[string]*Template
}

func NewMemorySnapshotter() *MemorySnapshotter {
	return &MemorySnapshotter{items: make(map[string]*Template)}
}

func (m *MemorySnapshotter) Put(_ context.Context, t *Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[snapshotKey(t.ID, t.Version)] = t.Clone()
	return nil
}

func (m *MemorySnapshotter) Load(_ context.Context, id string, version int) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.items[snapshotKey(id, version)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return t.Clone(), nil
}
