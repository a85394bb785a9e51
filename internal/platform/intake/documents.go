package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentTooLarge = errors.New("document exceeds maximum allowed size")
	ErrDocumentInvalid  = errors.New("document is not an extracted-fields object")
)

// MaxDocumentSize caps an extracted-fields object (1 MB).
const MaxDocumentSize = 1 << 20

// ---------------------------------------------------------------------------
// DocumentStore interface
// ---------------------------------------------------------------------------

// DocumentStore returns the fields the document pipeline extracted for key.
type DocumentStore interface {
	Fields(ctx context.Context, key string) (map[string]string, error)
}

// ---------------------------------------------------------------------------
// S3 implementation
// ---------------------------------------------------------------------------

// S3API is the subset of the S3 client used to read documents.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3DocumentStore reads extracted-fields JSON objects from a bucket.
type S3DocumentStore struct {
	client S3API
	bucket string
}

func NewS3DocumentStore(client S3API, bucket string) *S3DocumentStore {
	return &S3DocumentStore{client: client, bucket: bucket}
}

func (s *S3DocumentStore) Fields(ctx context.Context, key string) (map[string]string, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrDocumentTooLarge
	}
	return decodeFields(data)
}

func decodeFields(data []byte) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentInvalid, err)
	}
	return fields, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryDocumentStore is a thread-safe DocumentStore for development and
// tests.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string][]byte)}
}

// Put stores the raw extracted-fields JSON under key.
func (s *MemoryDocumentStore) Put(key string, data []byte) error {
	if len(data) > MaxDocumentSize {
		return ErrDocumentTooLarge
	}
	s.mu.Lock()
	s.docs[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryDocumentStore) Fields(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return decodeFields(data)
}
