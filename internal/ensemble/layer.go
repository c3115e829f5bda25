package ensemble

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

// Layer is one voter: a detector, an embedding model and the similarity
// threshold calibrated for that model. Thresholds of different models are
// not comparable.
type Layer struct {
	Name      string
	Detector  provider.Detector
	Fallback  provider.Detector // tried once when Detector fails, optional
	Embedder  provider.Embedder
	Threshold float64
}

// Space is the embedding space this layer matches in
func (l Layer) Space() string {
	return l.Embedder.Space()
}

func validateLayers(layers []Layer, quorum int) error {
	if len(layers) == 0 {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("at least one layer is required"))
	}
	if quorum < 1 || quorum > len(layers) {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("quorum %d outside 1..%d", quorum, len(layers)))
	}

	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		if l.Name == "" {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("layer %d has no name", i))
		}
		if seen[l.Name] {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("duplicate layer name %q", l.Name))
		}
		seen[l.Name] = true

		if l.Detector == nil || l.Embedder == nil {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("layer %q needs a detector and an embedder", l.Name))
		}
		if l.Threshold < -1 || l.Threshold > 1 {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("layer %q threshold %.2f outside [-1, 1]", l.Name, l.Threshold))
		}
	}
	return nil
}
