package shared

import (
	"encoding/json"
	"time"
)

// API Response types
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Message is the tagged envelope carried by the streaming connection in both
// directions. Data holds a GeoJSON feature for cot and task messages.
type Message struct {
	Type       string          `json:"type"`
	Connection string          `json:"connection,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Event types
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Subject   string                 `json:"subject"`
	Data      map[string]interface{} `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// Health check
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version,omitempty"`
	Uptime    time.Duration     `json:"uptime,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Constants
const (
	// Inbound message types
	MessageCOT   = "cot"
	MessageTask  = "task"
	MessageChat  = "chat"
	MessageError = "Error"

	// Task types
	TaskMissionChange = "t-x-m-c"
	TaskMissionLog    = "t-x-m-c-l"
	TaskMissionMeta   = "t-x-m-c-m"
	TaskDelete        = "t-x-d-d"

	// Mission change types
	ChangeAddContent    = "ADD_CONTENT"
	ChangeRemoveContent = "REMOVE_CONTENT"

	// Event Types
	EventTypeMissionChange  = "mission_change"
	EventTypeArchiveAdded   = "archive_added"
	EventTypeArchiveRemoved = "archive_removed"
	EventTypeChat           = "chat"
	EventTypeProfile        = "profile_updated"
	EventTypeAlert          = "alert"
)
