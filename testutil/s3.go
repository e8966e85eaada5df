package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FakeS3 keeps objects in memory under "bucket/key".
type FakeS3 struct {
	mu      sync.Mutex
	Objects map[string][]byte

	// Errors forces an operation ("GetObject", "PutObject") to fail.
	Errors map[string]error
	// ReportedLength, when positive, overrides ContentLength in GetObject.
	ReportedLength int64
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{Objects: map[string][]byte{}, Errors: map[string]error{}}
}

func (f *FakeS3) Put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[bucket+"/"+key] = append([]byte(nil), data...)
}

func (f *FakeS3) Get(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Objects[bucket+"/"+key]
	return data, ok
}

func (f *FakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errors["GetObject"]; err != nil {
		return nil, err
	}
	data, ok := f.Objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	length := int64(len(data))
	if f.ReportedLength > 0 {
		length = f.ReportedLength
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(length),
	}, nil
}

func (f *FakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.Errors["PutObject"]; err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.Put(aws.ToString(in.Bucket), aws.ToString(in.Key), data)
	return &s3.PutObjectOutput{}, nil
}
