package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/atomic"
)

// ErrReading is returned while another read of the same source is in flight
var ErrReading = errors.New("document is reading")

type ReadStatus = int32

const (
	Unread ReadStatus = iota
	Reading
	ReadCompleted
)

// Source is where a catalogue document comes from
type Source interface {
	Name() string
	ReadAll(ctx context.Context) ([]byte, error)
}

var (
	_ Source = (*File)(nil)
	_ Source = (*S3)(nil)
	_ Source = (*Http)(nil)
)

type File struct {
	path string
}

func NewFile(fname string) *File {
	return &File{path: fname}
}

func (f *File) Name() string {
	return f.path
}

func (f *File) ReadAll(_ context.Context) ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", f.path)
	}
	return os.ReadFile(f.path)
}

type S3 struct {
	bucket string
	key    string
	client *s3.Client
}

type S3Option func(*S3)

func WithS3Bucket(bucket string) S3Option {
	return func(s *S3) {
		s.bucket = bucket
	}
}

func WithS3Key(key string) S3Option {
	return func(s *S3) {
		s.key = key
	}
}

func WithS3Client(clt *s3.Client) S3Option {
	return func(s *S3) {
		s.client = clt
	}
}

func NewS3(opts ...S3Option) *S3 {
	ret := new(S3)
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *S3) Name() string {
	return s.key
}

func (s *S3) ReadAll(ctx context.Context) ([]byte, error) {
	if s.client == nil {
		return nil, errors.New("s3 client is not configured")
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// S3Config is a static credential S3 client configuration, Endpoint is for
// S3 compatible stores
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// Http downloads a document once and serves later reads from memory
type Http struct {
	status *atomic.Int32
	client *http.Client
	link   string
	data   []byte
}

type HttpOption func(*Http)

func WithHttpClient(client *http.Client) HttpOption {
	return func(h *Http) {
		h.client = client
	}
}

func NewHttp(link string, opts ...HttpOption) *Http {
	ret := &Http{
		status: atomic.NewInt32(Unread),
		client: http.DefaultClient,
		link:   link,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (h *Http) Name() string {
	if u, err := url.Parse(h.link); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		return path.Base(u.Path)
	}
	return h.link
}

func (h *Http) ReadStatus() ReadStatus {
	return h.status.Load()
}

func (h *Http) ReadAll(ctx context.Context) ([]byte, error) {
	if !h.status.CompareAndSwap(Unread, Reading) {
		if h.ReadStatus() == ReadCompleted {
			return h.data, nil
		}
		return nil, ErrReading
	}
	data, err := h.fetch(ctx)
	if err != nil {
		h.status.Store(Unread)
		return nil, err
	}
	h.data = data
	h.status.Store(ReadCompleted)
	return data, nil
}

func (h *Http) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", h.link, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Open resolves s3://bucket/key, http(s):// and local paths. client may be
// nil when no S3 source is used.
func Open(uri string, client *s3.Client) (Source, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 uri %q", uri)
		}
		return NewS3(WithS3Bucket(bucket), WithS3Key(key), WithS3Client(client)), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return NewHttp(uri), nil
	}
	return NewFile(uri), nil
}
