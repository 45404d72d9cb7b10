// Package snapshot archives the data directory and uploads it to S3
// after a dump, as an off-site copy of the exported configuration.
package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/faults"
)

// Uploader archives a directory tree and stores it under the configured
// bucket and key. The key may contain `$date`, replaced with the current
// date so recurring dumps do not overwrite each other.
type Uploader struct {
	cfg config.Snapshot
	s3  s3iface.S3API
	log *zap.Logger
	now func() time.Time
}

func NewUploader(cfg config.Snapshot, log *zap.Logger) (*Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to create AWS session", err)
	}
	return &Uploader{cfg: cfg, s3: s3.New(sess), log: log, now: time.Now}, nil
}

// Upload archives dir as tar.gz and puts it to S3.
func (u *Uploader) Upload(ctx context.Context, dir string) error {
	archive, err := archiveDir(dir)
	if err != nil {
		return err
	}

	key := strings.ReplaceAll(u.cfg.Key, "$date", u.now().Format("2006-01-02"))
	output, err := u.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(archive),
	})
	if err != nil {
		return faults.NewTypedError(faults.TransportError,
			fmt.Sprintf("failed to upload snapshot to s3://%s/%s", u.cfg.Bucket, key), err)
	}

	u.log.Info("uploaded snapshot",
		zap.String("bucket", u.cfg.Bucket),
		zap.String("key", key),
		zap.String("etag", aws.StringValue(output.ETag)))
	return nil
}

func archiveDir(dir string) ([]byte, error) {
	var buffer bytes.Buffer
	gzWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tarWriter, file)
		return err
	})
	if walkErr != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to archive data directory", walkErr)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to finalize archive", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to finalize archive", err)
	}
	return buffer.Bytes(), nil
}
