package rekognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

func ptr[T any](v T) *T {
	return &v
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func detail(left, top, width, height, confidence float32) types.FaceDetail {
	return types.FaceDetail{
		BoundingBox: &types.BoundingBox{
			Left:   aws.Float32(left),
			Top:    aws.Float32(top),
			Width:  aws.Float32(width),
			Height: aws.Float32(height),
		},
		Confidence: aws.Float32(confidence),
	}
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 0.9, cfg.MinConfidence)
	assert.Zero(t, cfg.MinQuality)
}

func TestDetector_Detect(t *testing.T) {
	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			require.NotEmpty(t, params.Image.Bytes)
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{
				detail(0.1, 0.2, 0.25, 0.4, 99.5),
				detail(0.6, 0.1, 0.2, 0.3, 42),
				detail(0.9, 0.5, 0.3, 0.3, 97),
				{Confidence: aws.Float32(99)},
			}}, nil
		},
	}

	faces, err := NewDetector(api, DefaultConfig(), 0).Detect(context.Background(), testImage(200, 100))
	require.NoError(t, err)
	require.Len(t, faces, 2)

	assert.Equal(t, provider.Box{X1: 20, Y1: 20, X2: 70, Y2: 60}, faces[0].Box)
	assert.InDelta(t, 0.995, faces[0].Score, 1e-6)
	assert.Equal(t, provider.Box{X1: 180, Y1: 50, X2: 200, Y2: 80}, faces[1].Box)
	assert.Equal(t, 1, api.calls)
}

func TestDetector_NoFaces(t *testing.T) {
	faces, err := NewDetector(&mockDetectFacesAPI{}, DefaultConfig(), 0).Detect(context.Background(), testImage(64, 64))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDetector_MinQuality(t *testing.T) {
	blurry := detail(0.1, 0.1, 0.5, 0.5, 99)
	blurry.Quality = &types.ImageQuality{Brightness: ptr(float32(90)), Sharpness: ptr(float32(5))}
	sharp := detail(0.1, 0.1, 0.5, 0.5, 99)
	sharp.Quality = &types.ImageQuality{Brightness: ptr(float32(60)), Sharpness: ptr(float32(90))}

	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{blurry, sharp}}, nil
		},
	}

	cfg := DefaultConfig()
	cfg.MinQuality = 0.5
	faces, err := NewDetector(api, cfg, 0).Detect(context.Background(), testImage(100, 100))
	require.NoError(t, err)
	assert.Len(t, faces, 1)
}

func TestDetector_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "access denied",
			err:     &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "throttling",
			err:     &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			wantErr: domain.ErrBackendUnavailable,
		},
		{
			name:    "network failure",
			err:     errors.New("dial tcp: connection refused"),
			wantErr: domain.ErrBackendUnavailable,
		},
		{
			name:    "bad image",
			err:     &smithy.GenericAPIError{Code: "InvalidImageFormatException", Message: "bad"},
			wantErr: domain.ErrInvalidImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockDetectFacesAPI{
				detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
					return nil, tt.err
				},
			}

			_, err := NewDetector(api, DefaultConfig(), 0).Detect(context.Background(), testImage(64, 64))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetector_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return nil, ctx.Err()
		},
	}

	_, err := NewDetector(api, DefaultConfig(), 0).Detect(ctx, testImage(64, 64))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestCalculateQualityScore verifies quality score calculation
func TestCalculateQualityScore(t *testing.T) {
	tests := []struct {
		name    string
		quality *types.ImageQuality
		want    float64
	}{
		{name: "nil quality", quality: nil, want: 0.0},
		{
			name:    "perfect quality",
			quality: &types.ImageQuality{Brightness: ptr(float32(100.0)), Sharpness: ptr(float32(100.0))},
			want:    1.0,
		},
		{
			name:    "sharpness weighted more heavily",
			quality: &types.ImageQuality{Brightness: ptr(float32(100.0)), Sharpness: ptr(float32(0.0))},
			want:    0.3,
		},
		{
			name:    "only sharpness set",
			quality: &types.ImageQuality{Sharpness: ptr(float32(80.0))},
			want:    0.56,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calculateQualityScore(tt.quality), 0.0001)
		})
	}
}

// TestIntegration_DetectFaces calls the real service when credentials exist
func TestIntegration_DetectFaces(t *testing.T) {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		t.Skip("Skipping integration test: AWS_ACCESS_KEY_ID not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, DefaultConfig())
	require.NoError(t, err)

	faces, err := NewDetector(client, DefaultConfig(), 0).Detect(ctx, testImage(320, 240))
	require.NoError(t, err)
	assert.Empty(t, faces, "a gradient has no faces")
}
