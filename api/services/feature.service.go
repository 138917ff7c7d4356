package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/services/atlas"

	"github.com/paulmach/orb"
)

const maxFilterLimit = 1000

type FeatureService struct {
	engine *atlas.Atlas
}

func NewFeatureService(engine *atlas.Atlas) *FeatureService {
	return &FeatureService{engine: engine}
}

func (s *FeatureService) Collection(ctx context.Context) (ontology.RenderedCollection, error) {
	return s.engine.Collection(ctx)
}

// CreateFeature adds or updates a feature. A non-empty mission routes it into
// that loaded mission.
func (s *FeatureService) CreateFeature(ctx context.Context, feat ontology.Feature, mission string, authored bool) (*ontology.Feature, error) {
	if feat.Geometry == nil {
		return nil, fmt.Errorf("%w: geometry is required", ErrInvalidRequest)
	}
	if feat.Type == "" {
		feat.Type = "Feature"
	}
	return s.engine.Add(ctx, feat, atlas.AddOptions{Mission: mission, Authored: authored})
}

func (s *FeatureService) GetFeature(ctx context.Context, id string, mission bool) (*ontology.Feature, error) {
	return s.engine.Get(ctx, id, mission)
}

func (s *FeatureService) DeleteFeature(ctx context.Context, id string, skipNetwork bool) error {
	return s.engine.Remove(ctx, id, atlas.RemoveOptions{SkipNetwork: skipNetwork})
}

func (s *FeatureService) Hide(ctx context.Context, id string) error {
	return s.engine.Hide(ctx, id)
}

func (s *FeatureService) Unhide(ctx context.Context, id string) error {
	return s.engine.Unhide(ctx, id)
}

func (s *FeatureService) Filter(ctx context.Context, req *ontology.FilterRequest) (ontology.List[ontology.Feature], error) {
	if strings.TrimSpace(req.Expression) == "" {
		return ontology.List[ontology.Feature]{}, fmt.Errorf("%w: expression is required", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 || limit > maxFilterLimit {
		limit = maxFilterLimit
	}
	matched, err := s.engine.Filter(ctx, req.Expression, atlas.FilterOptions{Mission: req.Mission, Limit: limit})
	if err != nil {
		return ontology.List[ontology.Feature]{}, err
	}
	return list(matched), nil
}

func (s *FeatureService) FilterRemove(ctx context.Context, req *ontology.FilterRequest) error {
	if strings.TrimSpace(req.Expression) == "" {
		return fmt.Errorf("%w: expression is required", ErrInvalidRequest)
	}
	return s.engine.FilterRemove(ctx, req.Expression)
}

func (s *FeatureService) Touching(ctx context.Context, req *ontology.TouchingRequest) (ontology.List[ontology.Feature], error) {
	if req.Geometry == nil {
		return ontology.List[ontology.Feature]{}, fmt.Errorf("%w: geometry is required", ErrInvalidRequest)
	}
	poly, ok := req.Geometry.Geometry().(orb.Polygon)
	if !ok {
		return ontology.List[ontology.Feature]{}, fmt.Errorf("%w: geometry must be a Polygon", ErrInvalidRequest)
	}
	touching, err := s.engine.Touching(ctx, poly)
	if err != nil {
		return ontology.List[ontology.Feature]{}, err
	}
	return list(touching), nil
}

func (s *FeatureService) Clear(ctx context.Context, ignoreArchived bool) error {
	return s.engine.Clear(ctx, atlas.ClearOptions{IgnoreArchived: ignoreArchived})
}

func (s *FeatureService) Paths(ctx context.Context) ([]string, error) {
	return s.engine.Paths(ctx)
}

func (s *FeatureService) PathFeatures(ctx context.Context, path string) (ontology.List[ontology.Feature], error) {
	feats, err := s.engine.PathFeatures(ctx, path)
	return list(feats), err
}

func (s *FeatureService) RemovePath(ctx context.Context, path string) error {
	if path == "" || path == "/" {
		return fmt.Errorf("%w: refusing to remove the root path", ErrInvalidRequest)
	}
	return s.engine.RemovePath(ctx, path)
}

func (s *FeatureService) Groups(ctx context.Context) ([]string, error) {
	return s.engine.Groups(ctx)
}

func (s *FeatureService) Contacts(ctx context.Context, group string) (ontology.List[ontology.Feature], error) {
	feats, err := s.engine.Contacts(ctx, group)
	return list(feats), err
}

func (s *FeatureService) Markers(ctx context.Context) ([]string, error) {
	return s.engine.Markers(ctx)
}

func (s *FeatureService) MarkerFeatures(ctx context.Context, typ string) (ontology.List[ontology.Feature], error) {
	feats, err := s.engine.MarkerFeatures(ctx, typ)
	return list(feats), err
}

// Snapping takes a "minLon,minLat,maxLon,maxLat" box.
func (s *FeatureService) Snapping(ctx context.Context, bbox string) ([]orb.Point, error) {
	box, err := ParseBBox(bbox)
	if err != nil {
		return nil, err
	}
	points, err := s.engine.Snapping(ctx, box)
	if points == nil {
		points = []orb.Point{}
	}
	return points, err
}

func (s *FeatureService) Profile(ctx context.Context) (atlas.Profile, error) {
	return s.engine.Profile(ctx)
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(raw string) ([4]float64, error) {
	var box [4]float64
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return box, fmt.Errorf("%w: bbox needs four comma separated numbers", ErrInvalidRequest)
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return box, fmt.Errorf("%w: bbox value %q: %v", ErrInvalidRequest, part, err)
		}
		box[i] = v
	}
	if box[0] > box[2] || box[1] > box[3] {
		return box, fmt.Errorf("%w: bbox minimum exceeds maximum", ErrInvalidRequest)
	}
	return box, nil
}

func list(feats []ontology.Feature) ontology.List[ontology.Feature] {
	if feats == nil {
		feats = []ontology.Feature{}
	}
	return ontology.List[ontology.Feature]{Total: len(feats), Items: feats}
}
