package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/pkg/log"
)

// Archiver keeps a copy of every exported report in an S3 bucket.
type Archiver struct {
	minioCli *minio.Client
	bucket   string
	prefix   string
	logger   *logrus.Entry
}

func NewArchiver(conf config.S3Config) (*Archiver, error) {
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}
	minioCli, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	return &Archiver{
		minioCli: minioCli,
		bucket:   conf.Bucket,
		prefix:   strings.Trim(conf.Prefix, "/"),
		logger:   log.Component("archiver"),
	}, nil
}

// ObjectKey is where exp is stored in the bucket.
func (a *Archiver) ObjectKey(exp *Export) string {
	return strings.TrimPrefix(path.Join(a.prefix, exp.Filename), "/")
}

// Archive uploads exp and returns its object key.
func (a *Archiver) Archive(ctx context.Context, exp *Export) (string, error) {
	key := a.ObjectKey(exp)
	_, err := a.minioCli.PutObject(
		ctx,
		a.bucket,
		key,
		bytes.NewReader(exp.Data),
		int64(len(exp.Data)),
		minio.PutObjectOptions{
			ContentType: ContentTypeFor(exp.Filename),
		},
	)
	if err != nil {
		return "", fmt.Errorf("put object to minio failed: %w", err)
	}
	a.logger.Infof("archived report %s to %s/%s", exp.Filename, a.bucket, key)
	return key, nil
}

// ContentTypeFor picks the object content type from the file extension.
func ContentTypeFor(name string) string {
	ext := ""
	if i := strings.LastIndex(name, "."); i != -1 {
		ext = strings.ToLower(name[i+1:])
	}
	switch ext {
	case "pdf":
		return "application/pdf"
	case "txt":
		return "text/plain; charset=utf-8"
	case "json":
		return "application/json"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "html", "htm":
		return "text/html"
	}
	return "application/octet-stream"
}
