package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// DefaultMaxImageSize applies when a handler is built without a limit
const DefaultMaxImageSize = 20 * 1024 * 1024 // 20MB

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/gif":  true,
}

var errImageRequired = errors.New("image file is required")

// readImage extracts and validates one uploaded image
func readImage(file *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("%s is empty", file.Filename))
	}
	if file.Size > maxSize {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("%s exceeds %d bytes", file.Filename, maxSize))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return imageBytes, nil
}

// formImage reads the single image stored under field
func formImage(c *fiber.Ctx, field string, maxSize int64) ([]byte, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(errImageRequired)
	}
	return readImage(file, maxSize)
}

// formImages reads every image stored under the given fields
func formImages(c *fiber.Ctx, maxSize int64, fields ...string) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	var images [][]byte
	for _, field := range fields {
		for _, file := range form.File[field] {
			data, err := readImage(file, maxSize)
			if err != nil {
				return nil, err
			}
			images = append(images, data)
		}
	}

	if len(images) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errImageRequired)
	}
	return images, nil
}
