package atlas

import (
	"context"

	"atlas-overwatch/pkg/ontology"
)

// ArchiveAPI is the server-side store of the user's archived features.
type ArchiveAPI interface {
	ListFeatures(ctx context.Context) ([]ontology.Feature, error)
	PutFeature(ctx context.Context, feature ontology.Feature) error
	DeleteFeature(ctx context.Context, id string) error
	DeletePath(ctx context.Context, path string) error
}

// MissionAPI is the remote mission (data sync) service.
type MissionAPI interface {
	Mission(ctx context.Context, guid, token string) (*ontology.Mission, error)
	MissionRole(ctx context.Context, guid, token string) (*ontology.MissionRole, error)
	MissionFeatures(ctx context.Context, guid, token string) (*ontology.FeatureCollection, error)
	MissionLogs(ctx context.Context, guid, token string) ([]ontology.MissionLog, error)
	DeleteMissionFeature(ctx context.Context, guid, uid, token string) error
	Subscribe(ctx context.Context, guid, token string) error
	Unsubscribe(ctx context.Context, guid, token string) error
}

// ProfileAPI reads and patches the server-side user profile.
type ProfileAPI interface {
	Profile(ctx context.Context) (*ontology.ProfileRecord, error)
	UpdateProfile(ctx context.Context, update ontology.ProfileUpdate) error
}

// Sender pushes CoT outward over the streaming connection. Implementations
// must not block; they drop the message when the connection is not open.
type Sender interface {
	SendCOT(data any, messageType string)
}

// RenderSink receives each non-empty diff and dirty mission collections.
type RenderSink interface {
	PublishDiff(diff ontology.Diff) error
	PublishMission(guid string, collection ontology.RenderedCollection) error
}

// Notifier receives engine events such as mission changes and chat.
type Notifier interface {
	Notify(eventType string, data map[string]any)
}

// Cache mirrors archived features and subscriptions locally.
type Cache interface {
	SaveFeature(ctx context.Context, feature ontology.Feature) error
	DeleteFeature(ctx context.Context, id string) error
	DeletePath(ctx context.Context, path string) error
	ListFeatures(ctx context.Context) ([]ontology.Feature, error)
	SaveSubscription(ctx context.Context, record ontology.SubscriptionRecord) error
	DeleteSubscription(ctx context.Context, guid string) error
	SaveMissionLogs(ctx context.Context, guid string, logs []ontology.MissionLog) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, map[string]any) {}

type nopSender struct{}

func (nopSender) SendCOT(any, string) {}
