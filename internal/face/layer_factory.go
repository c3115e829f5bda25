package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ensemble"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/insightface"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/rekognition"
)

// BackendType defines supported detection and embedding backends
type BackendType string

const (
	// BackendDeepFace is a DeepFace server (detection and embedding)
	BackendDeepFace BackendType = "deepface"
	// BackendInsightFace is an InsightFace embedding server (detection and embedding)
	BackendInsightFace BackendType = "insightface"
	// BackendRekognition is AWS Rekognition (detection only)
	BackendRekognition BackendType = "rekognition"
	// BackendMock is the deterministic in-process backend for dev/test
	BackendMock BackendType = "mock"
)

const defaultDeepFaceDetector = "opencv"

// Factory builds ensemble layers from a layer file. Layers that talk to the
// same server share one client.
type Factory struct {
	cfg *config.Config

	deepface       *deepface.Client
	insightface    *insightface.Client
	rekognitionAPI rekognition.DetectFacesAPI
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithRekognitionAPI replaces the AWS client, used by tests and callers that
// build their own
func WithRekognitionAPI(api rekognition.DetectFacesAPI) FactoryOption {
	return func(f *Factory) {
		f.rekognitionAPI = api
	}
}

func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	f := &Factory{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Layers converts every layer spec, in order
func (f *Factory) Layers(ctx context.Context, spec *config.Layers) ([]ensemble.Layer, error) {
	layers := make([]ensemble.Layer, 0, len(spec.Layers))
	for i, ls := range spec.Layers {
		layer, err := f.layer(ctx, ls)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, ls.Name, err)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// NewEngine builds the layers and the voting engine over g
func (f *Factory) NewEngine(ctx context.Context, spec *config.Layers, g ensemble.Snapshotter, logger *slog.Logger) (*ensemble.Engine, error) {
	layers, err := f.Layers(ctx, spec)
	if err != nil {
		return nil, err
	}

	return ensemble.NewEngine(g, layers, spec.Quorum,
		ensemble.WithLayerTimeout(f.cfg.LayerTimeout),
		ensemble.WithParallelLayers(f.cfg.ParallelLayers),
		ensemble.WithLogger(logger),
	)
}

func (f *Factory) layer(ctx context.Context, ls config.LayerSpec) (ensemble.Layer, error) {
	detector, err := f.detector(ctx, ls.Detector)
	if err != nil {
		return ensemble.Layer{}, fmt.Errorf("detector: %w", err)
	}

	var fallback provider.Detector
	if ls.Fallback != nil {
		fallback, err = f.detector(ctx, *ls.Fallback)
		if err != nil {
			return ensemble.Layer{}, fmt.Errorf("fallback detector: %w", err)
		}
	}

	embedder, err := f.embedder(ls.Embedder)
	if err != nil {
		return ensemble.Layer{}, fmt.Errorf("embedder: %w", err)
	}

	return ensemble.Layer{
		Name:      ls.Name,
		Detector:  detector,
		Fallback:  fallback,
		Embedder:  embedder,
		Threshold: ls.Threshold,
	}, nil
}

func (f *Factory) detector(ctx context.Context, spec config.DetectorSpec) (provider.Detector, error) {
	switch BackendType(spec.Type) {
	case BackendDeepFace:
		backend := spec.Backend
		if backend == "" {
			backend = defaultDeepFaceDetector
		}
		return deepface.NewDetector(f.deepFaceClient(), backend, "",
			deepface.WithMinFaceSide(f.cfg.MinFaceSize),
			deepface.WithMinScore(spec.MinScore),
		), nil

	case BackendInsightFace:
		return insightface.NewDetector(f.insightFaceClient(), spec.MinScore, f.cfg.MinFaceSize), nil

	case BackendRekognition:
		api, err := f.rekognitionClient(ctx)
		if err != nil {
			return nil, err
		}
		rcfg := rekognition.DefaultConfig()
		rcfg.Region = f.cfg.AWSRegion
		if spec.MinScore > 0 {
			rcfg.MinConfidence = spec.MinScore
		}
		return rekognition.NewDetector(api, rcfg, f.cfg.MinFaceSize), nil

	case BackendMock:
		return mock.NewDetector(), nil

	default:
		return nil, fmt.Errorf("unknown detector type: %q (supported: %s, %s, %s, %s)",
			spec.Type, BackendDeepFace, BackendInsightFace, BackendRekognition, BackendMock)
	}
}

func (f *Factory) embedder(spec config.EmbedderSpec) (provider.Embedder, error) {
	switch BackendType(spec.Type) {
	case BackendDeepFace:
		if spec.Model == "" {
			return nil, fmt.Errorf("deepface embedder needs a model")
		}
		return deepface.NewEmbedder(f.deepFaceClient(), spec.Model), nil

	case BackendInsightFace:
		return insightface.NewEmbedder(f.insightFaceClient(), spec.Model), nil

	case BackendMock:
		return mock.NewEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedder type: %q (supported: %s, %s, %s)",
			spec.Type, BackendDeepFace, BackendInsightFace, BackendMock)
	}
}

func (f *Factory) deepFaceClient() *deepface.Client {
	if f.deepface == nil {
		dcfg := deepface.DefaultConfig()
		if f.cfg.DeepFaceURL != "" {
			dcfg.BaseURL = f.cfg.DeepFaceURL
		}
		f.deepface = deepface.NewClient(dcfg)
	}
	return f.deepface
}

func (f *Factory) insightFaceClient() *insightface.Client {
	if f.insightface == nil {
		f.insightface = insightface.NewClient(f.cfg.InsightFaceURL, f.cfg.LayerTimeout)
	}
	return f.insightface
}

func (f *Factory) rekognitionClient(ctx context.Context) (rekognition.DetectFacesAPI, error) {
	if f.rekognitionAPI == nil {
		client, err := rekognition.NewClient(ctx, rekognition.Config{Region: f.cfg.AWSRegion})
		if err != nil {
			return nil, fmt.Errorf("create rekognition client: %w", err)
		}
		f.rekognitionAPI = client
	}
	return f.rekognitionAPI, nil
}
