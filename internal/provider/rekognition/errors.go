package rekognition

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrImageTooLarge indicates the encoded frame exceeds the DetectFaces payload limit
	ErrImageTooLarge = errors.New("image exceeds rekognition size limit")
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeUnrecognizedClient = "UnrecognizedClientException"
	errCodeInvalidSignature   = "InvalidSignatureException"
	errCodeExpiredToken       = "ExpiredTokenException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
)

// classify maps AWS errors onto the domain taxonomy. Anything that is not a
// problem with the image itself makes the backend unavailable for this run.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.ErrBackendUnavailable.WithError(err)
	}

	switch apiErr.ErrorCode() {
	case errCodeAccessDenied, errCodeUnrecognizedClient, errCodeInvalidSignature, errCodeExpiredToken:
		return domain.ErrBackendUnavailable.WithError(fmt.Errorf("%w: %v", ErrInvalidCredentials, err))
	case errCodeInvalidParameter, errCodeInvalidImageFormat, errCodeImageTooLarge:
		return domain.ErrInvalidImage.WithError(err)
	}
	return domain.ErrBackendUnavailable.WithError(err)
}
