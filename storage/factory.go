package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/genui/attested-trace-backend/interfaces"
)

// BackendFor creates a blob store from a location URI.
//
// Supported schemes:
//   - s3://bucket-name?region=us-west-2[&endpoint=https://...] with optional
//     accesskey:secretkey@ userinfo for static credentials
//   - file:///var/lib/trace-store
//
// Returns ErrUnsupportedScheme for any other scheme.
func BackendFor(locationURI string, log *slog.Logger) (interfaces.BlobStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return createS3Backend(u, log)
	case "file":
		return createFileBackend(u, log)
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedScheme, u.Scheme)
	}
}

func createS3Backend(u *url.URL, log *slog.Logger) (interfaces.BlobStore, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("s3 URI must name a bucket")
	}

	region := u.Query().Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := u.Query().Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucket, region, endpoint, accessKey, secretKey, log)
}

func createFileBackend(u *url.URL, log *slog.Logger) (interfaces.BlobStore, error) {
	dir := path.Join(u.Host, u.Path)
	if strings.HasPrefix(u.Path, "/") && u.Host == "" {
		dir = u.Path
	}
	if dir == "" {
		return nil, fmt.Errorf("file URI must name a directory")
	}

	return NewFileBackend(dir, log)
}
