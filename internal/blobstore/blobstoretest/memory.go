// Package blobstoretest provides an in-memory object store that satisfies the
// blobstore session interfaces and serves signed URLs over HTTP.
package blobstoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Operation names accepted by Fail.
const (
	OperationPut    = "put"
	OperationHead   = "head"
	OperationDelete = "delete"
	OperationList   = "list"
)

type storedObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

type failure struct {
	operation string
	prefix    string
	err       error
}

// Objects is an in-memory bucket.
type Objects struct {
	mu            sync.Mutex
	objects       map[string]storedObject
	failures      []failure
	signedBaseURL string
	deleted       []string
}

// NewObjects returns an empty bucket.
func NewObjects() *Objects {
	return &Objects{objects: make(map[string]storedObject)}
}

// Authorizer returns a blobstore.Authorizer handing out sessions over this bucket.
func (o *Objects) Authorizer() blobstore.Authorizer {
	return func(context.Context) (*blobstore.Session, error) {
		return &blobstore.Session{Objects: o, Presigner: o}, nil
	}
}

// SetSignedBaseURL sets the URL prefix used for presigned downloads, usually
// an httptest server wrapping Objects.
func (o *Objects) SetSignedBaseURL(base string) {
	o.mu.Lock()
	o.signedBaseURL = strings.TrimRight(base, "/")
	o.mu.Unlock()
}

// Fail makes every subsequent operation on keys starting with prefix return err.
func (o *Objects) Fail(operation, prefix string, err error) {
	o.mu.Lock()
	o.failures = append(o.failures, failure{operation: operation, prefix: prefix, err: err})
	o.mu.Unlock()
}

// Put seeds an object directly.
func (o *Objects) Put(key string, data []byte, contentType string) {
	o.mu.Lock()
	o.objects[key] = storedObject{data: append([]byte(nil), data...), contentType: contentType, lastModified: time.Now().UTC()}
	o.mu.Unlock()
}

// Get returns a stored object.
func (o *Objects) Get(key string) ([]byte, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	object, ok := o.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), object.data...), object.contentType, true
}

// Keys returns the stored keys in lexical order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for key := range o.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Deleted returns the keys removed through DeleteObject, in call order.
func (o *Objects) Deleted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.deleted...)
}

func (o *Objects) failureFor(operation, key string) error {
	for _, candidate := range o.failures {
		if candidate.operation == operation && strings.HasPrefix(key, candidate.prefix) {
			return candidate.err
		}
	}
	return nil
}

// PutObject implements blobstore.ObjectAPI.
func (o *Objects) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	var data []byte
	if params.Body != nil {
		read, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
		data = read
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failureFor(OperationPut, key); err != nil {
		return nil, err
	}
	o.objects[key] = storedObject{data: data, contentType: aws.ToString(params.ContentType), lastModified: time.Now().UTC()}
	return &s3.PutObjectOutput{}, nil
}

// HeadObject implements blobstore.ObjectAPI.
func (o *Objects) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failureFor(OperationHead, key); err != nil {
		return nil, err
	}
	object, ok := o.objects[key]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(object.data))),
		ContentType:   aws.String(object.contentType),
		LastModified:  aws.Time(object.lastModified),
	}, nil
}

// DeleteObject implements blobstore.ObjectAPI.
func (o *Objects) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failureFor(OperationDelete, key); err != nil {
		return nil, err
	}
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 implements blobstore.ObjectAPI. Everything fits in one page.
func (o *Objects) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failureFor(OperationList, prefix); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(o.objects))
	for key := range o.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	contents := make([]types.Object, 0, len(keys))
	for _, key := range keys {
		object := o.objects[key]
		contents = append(contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(object.data))),
			LastModified: aws.Time(object.lastModified),
		})
	}
	return &s3.ListObjectsV2Output{
		Contents:    contents,
		KeyCount:    aws.Int32(int32(len(contents))),
		IsTruncated: aws.Bool(false),
	}, nil
}

// PresignGetObject implements blobstore.Presigner.
func (o *Objects) PresignGetObject(_ context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	options := s3.PresignOptions{}
	for _, apply := range optFns {
		apply(&options)
	}
	o.mu.Lock()
	base := o.signedBaseURL
	o.mu.Unlock()
	if base == "" {
		base = "http://blobstore.invalid"
	}
	signed := fmt.Sprintf("%s/%s?expires=%d", base, url.PathEscape(aws.ToString(params.Key)), int64(options.Expires.Seconds()))
	return &v4.PresignedHTTPRequest{URL: signed, Method: http.MethodGet}, nil
}

// ServeHTTP serves stored objects at /{key}, as a provider download endpoint would.
func (o *Objects) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, err := url.PathUnescape(strings.TrimPrefix(request.URL.EscapedPath(), "/"))
	if err != nil {
		http.NotFound(writer, request)
		return
	}
	data, contentType, ok := o.Get(key)
	if !ok {
		http.NotFound(writer, request)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	writer.Header().Set("Content-Type", contentType)
	http.ServeContent(writer, request, key, time.Time{}, bytes.NewReader(data))
}
