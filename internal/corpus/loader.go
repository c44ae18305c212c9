package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/syno/internal/observe"
)

// S3Config points at an S3 compatible bucket (AWS or MinIO).
type S3Config struct {
	// "http://127.0.0.1:9000"; empty uses the AWS default endpoint.
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ErrNoMatches is returned when no source yields any corpus file.
var ErrNoMatches = errors.New("corpus pattern matched no files")

// ObjectGetter is the slice of the S3 client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Connect builds an S3 client from static configuration.
func Connect(cfg S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return s3.NewFromConfig(aws.Config{Region: region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		} else {
			o.Credentials = aws.AnonymousCredentials{}
		}
	})
}

// NeedsS3 reports whether any source is an s3:// URL.
func NeedsS3(sources []string) bool {
	for _, s := range sources {
		if strings.HasPrefix(s, "s3://") {
			return true
		}
	}
	return false
}

// Loader resolves corpus sources into a single bundle.
type Loader struct {
	S3  ObjectGetter
	Obs *observe.Observer
}

// Load reads every source in order and merges them. Sources are local glob
// patterns (doublestar syntax) or s3://bucket/key URLs. A pattern matching
// nothing is skipped; ErrNoMatches is returned only when no source yields
// any shard.
func (l *Loader) Load(ctx context.Context, sources ...string) (*Bundle, error) {
	if len(sources) == 0 {
		return nil, errors.New("no corpus sources configured")
	}

	merged := &Bundle{}
	var empty []string
	loaded := 0
	for _, src := range sources {
		var shards []*Bundle
		var err error
		if strings.HasPrefix(src, "s3://") {
			var b *Bundle
			b, err = l.loadS3(ctx, src)
			shards = []*Bundle{b}
		} else {
			shards, err = loadFiles(src)
		}
		if errors.Is(err, ErrNoMatches) {
			empty = append(empty, src)
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, b := range shards {
			if err := merged.Merge(b); err != nil {
				return nil, fmt.Errorf("%s: %w", src, err)
			}
		}
		loaded += len(shards)
	}

	if loaded == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, strings.Join(empty, ", "))
	}
	if l.Obs != nil {
		for _, src := range empty {
			l.Obs.Log().Warn().Str("source", src).Msg("corpus pattern matched no files, skipping")
		}
	}

	if err := merged.Normalize(); err != nil {
		return nil, err
	}
	return merged, nil
}

func loadFiles(pattern string) ([]*Bundle, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid corpus pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, pattern)
	}
	sort.Strings(matches)

	bundles := make([]*Bundle, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus file: %w", err)
		}
		b, err := Decode(m, data)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

func (l *Loader) loadS3(ctx context.Context, src string) (*Bundle, error) {
	if l.S3 == nil {
		return nil, fmt.Errorf("corpus source %s needs S3 configuration", src)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(src, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 corpus url %q", src)
	}

	out, err := l.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src, err)
	}
	return Decode(path.Base(key), data)
}
