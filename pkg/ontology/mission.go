package ontology

import (
	"time"
)

type Mission struct {
	GUID              string       `json:"guid"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	ChatRoom          string       `json:"chatRoom,omitempty"`
	Tool              string       `json:"tool,omitempty"`
	Keywords          []string     `json:"keywords,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
	CreatorUID        string       `json:"creatorUid,omitempty"`
	CreateTime        string       `json:"createTime,omitempty"`
	PasswordProtected bool         `json:"passwordProtected"`
	Logs              []MissionLog `json:"logs,omitempty"`
}

type MissionRole struct {
	Type        string   `json:"type"`
	Permissions []string `json:"permissions"`
}

// CanEdit reports whether the role allows writing mission content.
func (r MissionRole) CanEdit() bool {
	for _, p := range r.Permissions {
		if p == "MISSION_WRITE" {
			return true
		}
	}
	return false
}

type MissionLog struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	CreatorUID    string   `json:"creatorUid,omitempty"`
	EntryUID      string   `json:"entryUid,omitempty"`
	MissionNames  []string `json:"missionNames,omitempty"`
	Dtg           string   `json:"dtg,omitempty"`
	Created       string   `json:"created,omitempty"`
	ContentHashes []string `json:"contentHashes,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

type MissionChange struct {
	Type        string `json:"type"`
	ContentUID  string `json:"contentUid"`
	MissionName string `json:"missionName,omitempty"`
	CreatorUID  string `json:"creatorUid,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// TaskMission is the mission block carried by t-x-m-c task properties.
type TaskMission struct {
	GUID           string          `json:"guid,omitempty"`
	Name           string          `json:"name,omitempty"`
	Type           string          `json:"type,omitempty"`
	Tool           string          `json:"tool,omitempty"`
	AuthorUID      string          `json:"authorUid,omitempty"`
	MissionChanges []MissionChange `json:"missionChanges,omitempty"`
}

// SubscriptionRecord is the cached form of a loaded mission subscription.
type SubscriptionRecord struct {
	GUID       string      `json:"guid" db:"guid"`
	Name       string      `json:"name" db:"name"`
	Token      string      `json:"token,omitempty" db:"token"`
	Subscribed bool        `json:"subscribed" db:"subscribed"`
	Meta       Mission     `json:"meta" db:"meta"`
	Role       MissionRole `json:"role" db:"role"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}
