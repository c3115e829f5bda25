package rekognition

// Config holds configuration for the AWS Rekognition detector
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MinConfidence drops detections below this confidence (0-1)
	MinConfidence float64

	// MinQuality drops faces whose weighted brightness/sharpness score is
	// lower (0-1). Zero keeps every face.
	MinQuality float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 0.9,
	}
}
