package services

import (
	"context"
	"fmt"
	"strings"

	"atlas-overwatch/db"
	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/services/atlas"

	"github.com/paulmach/orb"
)

type MissionService struct {
	engine  *atlas.Atlas
	archive *db.Archive
}

func NewMissionService(engine *atlas.Atlas, archive *db.Archive) *MissionService {
	return &MissionService{engine: engine, archive: archive}
}

func (s *MissionService) ListMissions(ctx context.Context) (ontology.List[ontology.SubscriptionRecord], error) {
	recs, err := s.engine.Subscriptions(ctx)
	if err != nil {
		return ontology.List[ontology.SubscriptionRecord]{}, err
	}
	if recs == nil {
		recs = []ontology.SubscriptionRecord{}
	}
	// tokens stay server side
	for i := range recs {
		recs[i].Token = ""
	}
	return ontology.List[ontology.SubscriptionRecord]{Total: len(recs), Items: recs}, nil
}

func (s *MissionService) LoadMission(ctx context.Context, guid string, req *ontology.LoadMissionRequest) (*ontology.SubscriptionRecord, error) {
	if strings.TrimSpace(guid) == "" {
		return nil, fmt.Errorf("%w: guid is required", ErrInvalidRequest)
	}
	token := ""
	if req != nil {
		token = req.Token
	}
	rec, err := s.engine.LoadMission(ctx, guid, token)
	if err != nil {
		return nil, err
	}
	out := *rec
	out.Token = ""
	return &out, nil
}

func (s *MissionService) DeleteMission(ctx context.Context, guid string) error {
	return s.engine.DeleteMission(ctx, guid)
}

func (s *MissionService) SetActive(ctx context.Context, req *ontology.ActiveMissionRequest) error {
	return s.engine.MakeActiveMission(ctx, req.GUID)
}

// Collection returns the full features, or the renderer projection when raw
// is false.
func (s *MissionService) Collection(ctx context.Context, guid string, raw bool) (any, error) {
	if raw {
		return s.engine.MissionCollection(ctx, guid)
	}
	return s.engine.MissionRendered(ctx, guid)
}

func (s *MissionService) Bounds(ctx context.Context, guid string) (orb.Bound, error) {
	return s.engine.MissionBounds(ctx, guid)
}

// Logs reads the cached mission log.
func (s *MissionService) Logs(ctx context.Context, guid string) (ontology.List[ontology.MissionLog], error) {
	if s.archive == nil {
		return ontology.List[ontology.MissionLog]{Items: []ontology.MissionLog{}}, nil
	}
	logs, err := s.archive.ListMissionLogs(ctx, guid)
	if err != nil {
		return ontology.List[ontology.MissionLog]{}, err
	}
	return ontology.List[ontology.MissionLog]{Total: len(logs), Items: logs}, nil
}
