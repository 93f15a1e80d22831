package blobstore

import (
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNotFound indicates that the referenced object does not exist.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrStorageUnavailable indicates that no authorized session could be obtained.
	ErrStorageUnavailable = errors.New("blobstore: storage unavailable")
	// ErrUploadFailed indicates that the provider rejected a write.
	ErrUploadFailed = errors.New("blobstore: upload failed")
	// ErrDeleteFailed indicates that the provider rejected a deletion.
	ErrDeleteFailed = errors.New("blobstore: delete failed")
	// ErrInvalidName indicates an empty or path-traversing object name.
	ErrInvalidName = errors.New("blobstore: invalid object name")
)

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return statusCode(err) == http.StatusNotFound
}

// isAuthFailure reports whether the provider rejected the session credentials.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "Unauthorized":
			return true
		}
	}
	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func statusCode(err error) int {
	var responseErr *awshttp.ResponseError
	if errors.As(err, &responseErr) && responseErr.ResponseError != nil &&
		responseErr.Response != nil && responseErr.Response.Response != nil {
		return responseErr.HTTPStatusCode()
	}
	return 0
}
