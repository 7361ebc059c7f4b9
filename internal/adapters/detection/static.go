package detection

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/finishline/internal/domain/model"
)

// Fixture is the canned detection output for one image.
type Fixture struct {
	Faces []StaticFace       `yaml:"faces"`
	Text  []StaticTextResult `yaml:"text"`
}

// StaticFace is one canned face and its gallery hit, if any.
type StaticFace struct {
	Box        model.BoundingBox `yaml:"box"`
	AthleteID  string            `yaml:"athlete_id"`
	Similarity float64           `yaml:"similarity"`
	Confidence float64           `yaml:"confidence"`
}

// StaticTextResult is one canned OCR detection.
type StaticTextResult struct {
	Text       string  `yaml:"text"`
	Confidence float64 `yaml:"confidence"`
	Kind       string  `yaml:"kind"`
}

// StaticDetector answers from fixtures keyed by image reference. It backs
// local runs without a detection service and pipeline tests.
type StaticDetector struct {
	mu       sync.RWMutex
	fixtures map[string]Fixture
}

var _ Detector = (*StaticDetector)(nil)

// NewStaticDetector creates a detector over fixtures.
func NewStaticDetector(fixtures map[string]Fixture) *StaticDetector {
	if fixtures == nil {
		fixtures = make(map[string]Fixture)
	}
	return &StaticDetector{fixtures: fixtures}
}

// LoadStaticDetector reads fixtures from a YAML file mapping image references
// to Fixture documents.
func LoadStaticDetector(path string) (*StaticDetector, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read detection fixtures: %w", err)
	}
	var fixtures map[string]Fixture
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("parse detection fixtures: %w", err)
	}
	return NewStaticDetector(fixtures), nil
}

// Set registers or replaces the fixture for imageRef.
func (d *StaticDetector) Set(imageRef string, f Fixture) {
	d.mu.Lock()
	d.fixtures[imageRef] = f
	d.mu.Unlock()
}

func (d *StaticDetector) fixture(imageRef string) (Fixture, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.fixtures[imageRef]
	if !ok {
		return Fixture{}, fmt.Errorf("%w: %s", ErrImageNotFound, imageRef)
	}
	return f, nil
}

// DetectFaces implements Detector.
func (d *StaticDetector) DetectFaces(_ context.Context, imageRef string) ([]model.FaceCandidate, error) {
	f, err := d.fixture(imageRef)
	if err != nil {
		return nil, err
	}
	out := make([]model.FaceCandidate, 0, len(f.Faces))
	for _, face := range f.Faces {
		out = append(out, model.FaceCandidate{
			BoundingBox: face.Box,
			Attributes:  model.FaceAttributes{Confidence: face.Confidence},
		})
	}
	return out, nil
}

// SearchFace implements Detector. Faces are matched by bounding box.
func (d *StaticDetector) SearchFace(_ context.Context, req SearchRequest) ([]model.FaceMatch, error) {
	f, err := d.fixture(req.ImageRef)
	if err != nil {
		return nil, err
	}
	if !req.BoundingBox.Valid() {
		return nil, fmt.Errorf("%w: bounding box %+v", ErrInvalidParameter, req.BoundingBox)
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = DefaultSearchThreshold
	}
	for _, face := range f.Faces {
		if face.Box != req.BoundingBox {
			continue
		}
		if face.AthleteID == "" || face.Similarity < threshold {
			return []model.FaceMatch{}, nil
		}
		return []model.FaceMatch{{AthleteID: face.AthleteID, Similarity: face.Similarity}}, nil
	}
	return []model.FaceMatch{}, nil
}

// DetectText implements Detector.
func (d *StaticDetector) DetectText(_ context.Context, imageRef string) ([]model.TextLine, error) {
	f, err := d.fixture(imageRef)
	if err != nil {
		return nil, err
	}
	out := make([]model.TextLine, 0, len(f.Text))
	for _, t := range f.Text {
		kind := model.TextKind(t.Kind)
		if kind == "" {
			kind = model.TextWordKind
		}
		out = append(out, model.TextLine{Text: t.Text, Confidence: t.Confidence, Kind: kind})
	}
	return out, nil
}
