package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"atlas-overwatch/pkg/ontology"

	"github.com/paulmach/orb/geojson"
)

// Archive is the sqlite mirror of archived features, loaded mission
// subscriptions and their logs. It lets the engine start with the last known
// archive when the server is unreachable.
type Archive struct {
	svc *Service
}

func NewArchive(svc *Service) *Archive {
	return &Archive{svc: svc}
}

func (a *Archive) SaveFeature(ctx context.Context, feature ontology.Feature) error {
	props, err := json.Marshal(feature.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	var geometry sql.NullString
	if feature.Geometry != nil {
		raw, err := json.Marshal(feature.Geometry)
		if err != nil {
			return fmt.Errorf("failed to marshal geometry: %w", err)
		}
		geometry = sql.NullString{String: string(raw), Valid: true}
	}
	path := feature.Path
	if path == "" {
		path = "/"
	}

	_, err = a.svc.DB.ExecContext(ctx, `
		INSERT INTO features (id, path, type, properties, geometry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			type = excluded.type,
			properties = excluded.properties,
			geometry = excluded.geometry,
			updated_at = excluded.updated_at`,
		feature.ID, path, feature.Properties.Type, string(props), geometry, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save feature %s: %w", feature.ID, err)
	}
	return nil
}

func (a *Archive) DeleteFeature(ctx context.Context, id string) error {
	if _, err := a.svc.DB.ExecContext(ctx, `DELETE FROM features WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete feature %s: %w", id, err)
	}
	return nil
}

// DeletePath removes every feature whose path starts with path.
func (a *Archive) DeletePath(ctx context.Context, path string) error {
	_, err := a.svc.DB.ExecContext(ctx,
		`DELETE FROM features WHERE substr(path, 1, length(?)) = ?`, path, path)
	if err != nil {
		return fmt.Errorf("failed to delete path %s: %w", path, err)
	}
	return nil
}

func (a *Archive) ListFeatures(ctx context.Context) ([]ontology.Feature, error) {
	rows, err := a.svc.DB.QueryContext(ctx,
		`SELECT id, path, properties, geometry FROM features ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	features := []ontology.Feature{}
	for rows.Next() {
		var (
			feat     ontology.Feature
			props    string
			geometry sql.NullString
		)
		if err := rows.Scan(&feat.ID, &feat.Path, &props, &geometry); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		feat.Type = "Feature"
		if err := json.Unmarshal([]byte(props), &feat.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode feature %s: %w", feat.ID, err)
		}
		if geometry.Valid {
			g, err := geojson.UnmarshalGeometry([]byte(geometry.String))
			if err != nil {
				return nil, fmt.Errorf("failed to decode geometry of %s: %w", feat.ID, err)
			}
			feat.Geometry = g
		}
		features = append(features, feat)
	}
	return features, rows.Err()
}

func (a *Archive) SaveSubscription(ctx context.Context, record ontology.SubscriptionRecord) error {
	meta, err := json.Marshal(record.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal mission meta: %w", err)
	}
	role, err := json.Marshal(record.Role)
	if err != nil {
		return fmt.Errorf("failed to marshal mission role: %w", err)
	}
	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = a.svc.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (guid, name, token, subscribed, meta, role, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			name = excluded.name,
			token = excluded.token,
			subscribed = excluded.subscribed,
			meta = excluded.meta,
			role = excluded.role,
			updated_at = excluded.updated_at`,
		record.GUID, record.Name, record.Token, record.Subscribed, string(meta), string(role), updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", record.GUID, err)
	}
	return nil
}

func (a *Archive) DeleteSubscription(ctx context.Context, guid string) error {
	return a.svc.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_logs WHERE guid = ?`, guid); err != nil {
			return fmt.Errorf("failed to delete mission logs %s: %w", guid, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE guid = ?`, guid); err != nil {
			return fmt.Errorf("failed to delete subscription %s: %w", guid, err)
		}
		return nil
	})
}

func (a *Archive) ListSubscriptions(ctx context.Context) ([]ontology.SubscriptionRecord, error) {
	rows, err := a.svc.DB.QueryContext(ctx,
		`SELECT guid, name, token, subscribed, meta, role, updated_at FROM subscriptions ORDER BY name, guid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	records := []ontology.SubscriptionRecord{}
	for rows.Next() {
		var (
			rec        ontology.SubscriptionRecord
			meta, role string
		)
		if err := rows.Scan(&rec.GUID, &rec.Name, &rec.Token, &rec.Subscribed, &meta, &role, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &rec.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode mission meta %s: %w", rec.GUID, err)
		}
		if err := json.Unmarshal([]byte(role), &rec.Role); err != nil {
			return nil, fmt.Errorf("failed to decode mission role %s: %w", rec.GUID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveMissionLogs replaces the cached logs of a mission.
func (a *Archive) SaveMissionLogs(ctx context.Context, guid string, logs []ontology.MissionLog) error {
	return a.svc.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_logs WHERE guid = ?`, guid); err != nil {
			return fmt.Errorf("failed to clear mission logs %s: %w", guid, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO subscription_logs (guid, id, content, created, data) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare mission log insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range logs {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal mission log %s: %w", entry.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, guid, entry.ID, entry.Content, entry.Created, string(data)); err != nil {
				return fmt.Errorf("failed to save mission log %s: %w", entry.ID, err)
			}
		}
		return nil
	})
}

func (a *Archive) ListMissionLogs(ctx context.Context, guid string) ([]ontology.MissionLog, error) {
	rows, err := a.svc.DB.QueryContext(ctx,
		`SELECT data FROM subscription_logs WHERE guid = ? ORDER BY created, id`, guid)
	if err != nil {
		return nil, fmt.Errorf("failed to list mission logs: %w", err)
	}
	defer rows.Close()

	logs := []ontology.MissionLog{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan mission log: %w", err)
		}
		var entry ontology.MissionLog
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode mission log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
