package s3

import (
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	lib "saffron/lib/sagemaker"
)

type S3Args struct {
	Region string `arg:"--region,env:AWS_REGION,help:AWS region"`
}

type Client struct {
	args       S3Args
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	deleter    *s3manager.BatchDelete
}

func NewClient(args S3Args) Client {
	sess := session.Must(session.NewSession(
		&aws.Config{
			Region:                        aws.String(args.Region),
			CredentialsChainVerboseErrors: aws.Bool(true),
		},
	))
	return NewClientFromSession(args, sess)
}

// NewClientFromSession exists so tests can point the client at a local fake.
func NewClientFromSession(args S3Args, sess *session.Session) Client {
	return Client{
		args:       args,
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
		deleter:    s3manager.NewBatchDelete(sess),
	}
}

func (c Client) Upload(file io.Reader, fileName, bucketName string) error {
	input := s3manager.UploadInput{
		Body:   file,
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileName),
	}
	_, err := c.uploader.Upload(&input)
	return err
}

func (c Client) Download(fileName, bucketName string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileName),
	}
	buf := aws.WriteAtBuffer{}
	_, err := c.downloader.Download(&buf, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == s3.ErrCodeNoSuchKey || e.Code() == "NotFound" {
				return nil, lib.ErrNotFound
			}
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadURI fetches the object behind an s3:// URI. Returns
// lib.ErrNotFound when the object does not exist - an absent object means
// "not yet written", which async result polling must distinguish from real
// failures.
func (c Client) DownloadURI(uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return c.Download(key, bucket)
}

func (c Client) UploadURI(file io.Reader, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	return c.Upload(file, key, bucket)
}

func (c Client) Delete(fileName string, bucketName string) error {
	input := s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileName),
	}
	objects := []s3manager.BatchDeleteObject{{Object: &input}}
	iterator := s3manager.DeleteObjectsIterator{Objects: objects}
	return c.deleter.Delete(aws.BackgroundContext(), &iterator)
}

// ParseURI splits an s3://bucket/key URI. Fails with lib.ErrInvalidReference
// on anything else; async invocation locations always arrive in this form.
func ParseURI(uri string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	if trimmed == uri {
		return "", "", fmt.Errorf("%w: '%s' is not an s3:// uri", lib.ErrInvalidReference, uri)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: '%s' has no bucket or key", lib.ErrInvalidReference, uri)
	}
	return parts[0], parts[1], nil
}
