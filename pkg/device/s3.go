package device

import (
	"bytes"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	. "github.com/weberc2/ext2fs/pkg/types"
)

// S3 is a device which stores each block as its own object under
// `<prefix>/<index>`. Blocks which were never written read as zeros.
type S3 struct {
	Client s3iface.S3API
	Bucket string
	Prefix string
	Blocks uint64
}

// NewS3 builds an S3 device whose key prefix is derived from the volume
// name, e.g. "My Floppy" becomes "my-floppy".
func NewS3(client s3iface.S3API, bucket, volume string, blocks uint64) *S3 {
	return &S3{
		Client: client,
		Bucket: bucket,
		Prefix: slug.Make(volume),
		Blocks: blocks,
	}
}

func (d *S3) Len() uint64 { return d.Blocks }

func (d *S3) key(index uint64) string {
	return fmt.Sprintf("%s/%016x", d.Prefix, index)
}

func (d *S3) ReadBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(d, index); err != nil {
		return fmt.Errorf("reading s3 device: %w", err)
	}

	rsp, err := d.Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.key(index)),
	})
	if err != nil {
		if err, ok := err.(awserr.Error); ok {
			if err.Code() == s3.ErrCodeNoSuchKey {
				logrus.WithField("block", index).Debug("s3 block not found")
				zero(b)
				return nil
			}
		}
		return fmt.Errorf(
			"reading s3 device block `%d` (bucket `%s`, key `%s`): %w",
			index,
			d.Bucket,
			d.key(index),
			err,
		)
	}
	defer rsp.Body.Close()

	if _, err := io.ReadFull(rsp.Body, b[:]); err != nil {
		return fmt.Errorf(
			"reading s3 device block `%d` (bucket `%s`, key `%s`): %w",
			index,
			d.Bucket,
			d.key(index),
			err,
		)
	}
	return nil
}

func (d *S3) WriteBlock(index uint64, b *[DeviceBlockSize]byte) error {
	if err := checkIndex(d, index); err != nil {
		return fmt.Errorf("writing s3 device: %w", err)
	}

	if _, err := d.Client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.key(index)),
		Body:   bytes.NewReader(b[:]),
	}); err != nil {
		return fmt.Errorf(
			"writing s3 device block `%d` (bucket `%s`, key `%s`): %w",
			index,
			d.Bucket,
			d.key(index),
			err,
		)
	}
	return nil
}
