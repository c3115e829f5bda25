package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// LayerReportData describes one recognizer's contribution to a run
type LayerReportData struct {
	Name         string   `json:"name" example:"retinaface-facenet512"`
	Space        string   `json:"space" example:"deepface/Facenet512"`
	Faces        int      `json:"faces" example:"24"`
	Embedded     int      `json:"embedded" example:"24"`
	Votes        []string `json:"votes" example:"12_ana"`
	UsedFallback bool     `json:"used_fallback,omitempty" example:"false"`
	Skipped      bool     `json:"skipped,omitempty" example:"false"`
	TimedOut     bool     `json:"timed_out,omitempty" example:"false"`
	Error        string   `json:"error,omitempty" example:""`
	LatencyNs    int64    `json:"latency_ns" example:"850000000"`
}

// BoxData is a pixel bounding box in the uploaded image
type BoxData struct {
	X1 int `json:"x1" example:"120"`
	Y1 int `json:"y1" example:"80"`
	X2 int `json:"x2" example:"190"`
	Y2 int `json:"y2" example:"160"`
}

// EvidenceData is the face that earned an identity a layer's vote
type EvidenceData struct {
	Layer      string  `json:"layer" example:"retinaface-facenet512"`
	Key        string  `json:"key" example:"12_ana"`
	Similarity float64 `json:"similarity" example:"0.83"`
	Box        BoxData `json:"box"`
}

// SummaryData counts verdicts
type SummaryData struct {
	Total   int `json:"total" example:"30"`
	Present int `json:"present" example:"27"`
	Absent  int `json:"absent" example:"3"`
}

// AttendanceResponse represents the response for an attendance run
type AttendanceResponse struct {
	RunID          string            `json:"run_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Attendance     map[string]string `json:"attendance"`
	Summary        SummaryData       `json:"summary"`
	Votes          map[string]int    `json:"votes"`
	Quorum         int               `json:"quorum" example:"2"`
	Layers         []LayerReportData `json:"layers"`
	Evidence       []EvidenceData    `json:"evidence"`
	Width          int               `json:"width" example:"4032"`
	Height         int               `json:"height" example:"3024"`
	CapturedAt     string            `json:"captured_at,omitempty" example:"2026-03-02T08:01:12Z"`
	LatencyMs      int64             `json:"latency_ms" example:"2310"`
	AnnotatedImage string            `json:"annotated_image,omitempty" example:"/9j/4AAQSkZJRg..."`
}

// EnrollmentResponse represents the response for a successful enrollment
type EnrollmentResponse struct {
	Key      string         `json:"key" example:"12_Ana_Souza"`
	Replaced bool           `json:"replaced" example:"false"`
	Samples  int            `json:"samples" example:"5"`
	Spaces   map[string]int `json:"spaces"`
}

// IdentitiesResponse lists enrolled identities
type IdentitiesResponse struct {
	Identities []string `json:"identities" example:"12_Ana_Souza"`
	Count      int      `json:"count" example:"1"`
}

// HealthResponse is returned by /health and /ready
type HealthResponse struct {
	Status  string `json:"status" example:"ready"`
	Version string `json:"version,omitempty" example:"0.1.0"`
	Reason  string `json:"reason,omitempty" example:""`
}

// ErrorBody is the code and message of a failed request
type ErrorBody struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func errorResponse(code, message, status, description string) response.Response {
	return response.New(ErrorResponse{Error: ErrorBody{Code: code, Message: message}}, status, description)
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Rollcall Attendance API",
		Version:     "v1.0.0",
		Description: "Classroom attendance from a single photo: an ensemble of face recognizers votes on every enrolled student",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	internalError := errorResponse("INTERNAL_ERROR", "An unexpected error occurred", "500", "Internal Server Error")

	endpoints := []*endpoint.EndPoint{
		// POST /v1/attendance - Recognize
		endpoint.New(
			endpoint.POST,
			"/attendance",
			endpoint.WithTags("Attendance"),
			endpoint.WithSummary("Mark attendance from a class photo"),
			endpoint.WithDescription("Every enrolled identity starts Absent and becomes Present when at least quorum recognizers matched one face to it. A recognizer that fails casts no votes. The photo is sent as the image form file."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("annotate", parameter.Query, parameter.WithDescription("true returns a JPEG with a box around every Present identity (base64)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AttendanceResponse{}, "200", "Attendance computed"),
			}),
			endpoint.WithErrors([]response.Response{
				errorResponse("VALIDATION_FAILED", "image file is required", "422", "Unprocessable Entity"),
				errorResponse("INVALID_IMAGE", "Image could not be decoded", "422", "Unprocessable Entity"),
				errorResponse("PAYLOAD_TOO_LARGE", "Request Entity Too Large", "413", "Payload Too Large"),
				errorResponse("BACKEND_UNAVAILABLE", "Every recognition backend is unavailable", "503", "Service Unavailable"),
				internalError,
			}),
		),

		// POST /v1/identities - Enroll
		endpoint.New(
			endpoint.POST,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Enroll an identity"),
			endpoint.WithDescription("Builds one template per embedding space from the largest face of every sample. Form fields: key, or roll and name, plus one or more files under images. Re-enrolling replaces the previous templates."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EnrollmentResponse{}, "201", "Identity enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				errorResponse("VALIDATION_FAILED", "key or roll and name are required", "422", "Unprocessable Entity"),
				errorResponse("INVALID_IDENTITY_KEY", "Invalid identity key", "422", "Unprocessable Entity"),
				errorResponse("ENROLLMENT_INSUFFICIENT_SAMPLES", "No usable face in any sample", "422", "Unprocessable Entity"),
				errorResponse("GALLERY_IO_ERROR", "Gallery could not be persisted", "500", "Internal Server Error"),
				internalError,
			}),
		),

		// GET /v1/identities - List
		endpoint.New(
			endpoint.GET,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("List enrolled identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IdentitiesResponse{}, "200", "Sorted identity keys"),
			}),
		),

		// DELETE /v1/identities/:key - Remove
		endpoint.New(
			endpoint.DELETE,
			"/identities/{key}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Remove an identity"),
			endpoint.WithDescription("Deletes every template of the identity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("key", parameter.Path, parameter.WithDescription("Identity key")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Identity removed"),
			}),
			endpoint.WithErrors([]response.Response{
				errorResponse("IDENTITY_NOT_FOUND", "Identity not found", "404", "Not Found"),
				errorResponse("GALLERY_IO_ERROR", "Gallery could not be persisted", "500", "Internal Server Error"),
			}),
		),

		// POST /v1/gallery/reload - Reload
		endpoint.New(
			endpoint.POST,
			"/gallery/reload",
			endpoint.WithTags("Gallery"),
			endpoint.WithSummary("Reload the gallery from storage"),
			endpoint.WithDescription("Picks up identities written by another process, such as the bulk enrollment CLI. The previous gallery is kept when loading fails."),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Gallery reloaded"),
			}),
			endpoint.WithErrors([]response.Response{
				errorResponse("GALLERY_IO_ERROR", "Gallery could not be loaded", "500", "Internal Server Error"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
