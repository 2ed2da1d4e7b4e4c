package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
)

// archives returns one instance of every backend.
func archives(t *testing.T) map[string]declutter.Archive {
	t.Helper()
	fsa, err := NewFileSystemArchive(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	return map[string]declutter.Archive{
		"memory":     NewMemoryArchive(),
		"filesystem": fsa,
		"s3":         NewS3Archive(newFakeS3(), "bucket", "declutter"),
	}
}

func TestArchive_PutGet(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			tests := []struct {
				key     string
				content string
			}{
				{"reports/1/20240115T103000Z.json", `{"owner_id":1}`},
				{"backups/i1/declutter-7.db", strings.Repeat("x", 10000)},
				{"empty", ""},
			}

			for _, tt := range tests {
				if err := a.Put(ctx, tt.key, strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
					t.Fatalf("Put(%s) error = %v", tt.key, err)
				}

				var buf bytes.Buffer
				if err := a.Get(ctx, tt.key, &buf); err != nil {
					t.Fatalf("Get(%s) error = %v", tt.key, err)
				}
				if buf.String() != tt.content {
					t.Errorf("Get(%s) = %d bytes, want %d", tt.key, buf.Len(), len(tt.content))
				}
			}
		})
	}
}

func TestArchive_Overwrite(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			for _, content := range []string{"first", "second"} {
				if err := a.Put(ctx, "k", strings.NewReader(content), int64(len(content))); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			}
			var buf bytes.Buffer
			if err := a.Get(ctx, "k", &buf); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if buf.String() != "second" {
				t.Errorf("Get() = %q, want %q", buf.String(), "second")
			}
		})
	}
}

func TestArchive_GetMissing(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			err := a.Get(ctx, "reports/none.json", io.Discard)
			if !errors.Is(err, declutter.ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestArchive_SizeMismatch(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			if err := a.Put(ctx, "k", strings.NewReader("hello"), 100); err == nil {
				t.Error("Put() expected size mismatch error")
			}
		})
	}
}

func TestArchive_InvalidKey(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "/abs", "../escape", "a//b", "a/./b"} {
				if err := a.Put(ctx, key, strings.NewReader("x"), 1); err == nil {
					t.Errorf("Put(%q) expected error", key)
				}
			}
		})
	}
}

func TestArchive_List(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"reports/1/b.json", "reports/1/a.json", "reports/2/c.json", "backups/x.db"} {
				if err := a.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
					t.Fatalf("Put(%s) error = %v", key, err)
				}
			}

			got, err := a.List(ctx, "reports/1/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			want := []string{"reports/1/a.json", "reports/1/b.json"}
			if len(got) != len(want) {
				t.Fatalf("List() = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
				}
			}

			all, err := a.List(ctx, "")
			if err != nil {
				t.Fatalf("List(\"\") error = %v", err)
			}
			if len(all) != 4 {
				t.Errorf("len(List(\"\")) = %d, want 4", len(all))
			}
		})
	}
}

func TestArchive_ValidateSetup(t *testing.T) {
	ctx := context.Background()

	for name, a := range archives(t) {
		t.Run(name, func(t *testing.T) {
			if err := a.ValidateSetup(ctx); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestS3Archive_Prefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	a := NewS3Archive(fake, "bucket", "/team/declutter/")

	if err := a.Put(ctx, "reports/1/a.json", strings.NewReader("{}"), 2); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := fake.objects["team/declutter/reports/1/a.json"]; !ok {
		t.Errorf("objects = %v, want key below prefix", fake.keys())
	}

	keys, err := a.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "reports/1/a.json" {
		t.Errorf("List() = %v, want [reports/1/a.json]", keys)
	}
}

func TestNewArchiveFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		got, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{})
		if err != nil {
			t.Fatalf("NewArchiveFromConfig() error = %v", err)
		}
		if got != nil {
			t.Errorf("NewArchiveFromConfig() = %v, want nil", got)
		}
	})

	t.Run("memory", func(t *testing.T) {
		got, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewArchiveFromConfig() error = %v", err)
		}
		if _, ok := got.(*MemoryArchive); !ok {
			t.Errorf("NewArchiveFromConfig() = %T, want *MemoryArchive", got)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		got, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{Type: "filesystem", Root: t.TempDir()})
		if err != nil {
			t.Fatalf("NewArchiveFromConfig() error = %v", err)
		}
		if _, ok := got.(*FileSystemArchive); !ok {
			t.Errorf("NewArchiveFromConfig() = %T, want *FileSystemArchive", got)
		}
	})

	t.Run("filesystem without root", func(t *testing.T) {
		if _, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{Type: "filesystem"}); err == nil {
			t.Error("NewArchiveFromConfig() expected error for missing root")
		}
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		if _, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{Type: "s3"}); err == nil {
			t.Error("NewArchiveFromConfig() expected error for missing bucket")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewArchiveFromConfig(ctx, config.ArchiveConfig{Type: "tape"}); err == nil {
			t.Error("NewArchiveFromConfig() expected error for unknown type")
		}
	})
}

// fakeS3 is an in-memory stand-in for the S3 API. Objects smaller than the
// uploader part size arrive as a single PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for _, k := range f.keys() {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			contents = append(contents, types.Object{Key: aws.String(k)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}
