package services

import (
	"context"
	"errors"

	"atlas-overwatch/db"
	"atlas-overwatch/pkg/ontology"
)

// ErrInvalidRequest marks caller mistakes that map to 400 responses.
var ErrInvalidRequest = errors.New("invalid request")

type ArchiveService struct {
	archive *db.Archive
}

func NewArchiveService(archive *db.Archive) *ArchiveService {
	return &ArchiveService{archive: archive}
}

// Listing returns the local archive cache. Subscription tokens are redacted.
func (s *ArchiveService) Listing(ctx context.Context) (*ontology.ArchiveListing, error) {
	out := &ontology.ArchiveListing{
		Features:      ontology.List[ontology.Feature]{Items: []ontology.Feature{}},
		Subscriptions: ontology.List[ontology.SubscriptionRecord]{Items: []ontology.SubscriptionRecord{}},
	}
	if s.archive == nil {
		return out, nil
	}

	feats, err := s.archive.ListFeatures(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.archive.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Token = ""
	}
	out.Features = ontology.List[ontology.Feature]{Total: len(feats), Items: feats}
	out.Subscriptions = ontology.List[ontology.SubscriptionRecord]{Total: len(subs), Items: subs}
	return out, nil
}
