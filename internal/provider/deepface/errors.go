package deepface

import (
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrInvalidResponse     = errors.New("invalid response from deepface")
	ErrNoFaceInResponse    = errors.New("no face data in deepface response")
)

// StatusError is an HTTP error answer from the DeepFace server
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.Code, e.Body)
}

// isClientError reports 4xx answers, which are never retried
func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// classify maps transport failures onto the domain taxonomy
func classify(err error) error {
	if errors.Is(err, ErrDeepFaceUnavailable) {
		return domain.ErrBackendUnavailable.WithError(err)
	}
	return err
}
