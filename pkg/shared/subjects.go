package shared

import "fmt"

// NATS Subject patterns
const (
	// Base subject prefixes
	SubjectPrefix = "atlas"

	// Inbound transport payloads, one subject per message type
	SubjectInbound     = "atlas.inbound"
	SubjectInboundAll  = "atlas.inbound.>"
	SubjectInboundCOT  = "atlas.inbound.cot"
	SubjectInboundTask = "atlas.inbound.task"
	SubjectInboundChat = "atlas.inbound.chat"
	SubjectInboundType = "atlas.inbound.%s" // message type

	// Renderer subjects
	SubjectRenderDiff    = "atlas.render.diff"
	SubjectRenderMission = "atlas.render.mission.%s" // mission guid

	// Event subjects
	SubjectEvents    = "atlas.events"
	SubjectEventsAll = "atlas.events.>"
	SubjectEventType = "atlas.events.%s" // event type

	// System subjects
	SubjectSystemHealth = "atlas.system.health"
)

// Stream names
const (
	StreamInbound = "ATLAS_INBOUND"
	StreamEvents  = "ATLAS_EVENTS"
)

// Consumer names
const (
	ConsumerCOTProcessor  = "cot-processor"
	ConsumerTaskProcessor = "task-processor"
	ConsumerChatProcessor = "chat-processor"
	ConsumerEventLogger   = "event-logger"
)

// Helper functions to generate subjects
func InboundSubject(messageType string) string {
	return fmt.Sprintf(SubjectInboundType, messageType)
}

func RenderMissionSubject(guid string) string {
	return fmt.Sprintf(SubjectRenderMission, guid)
}

func EventSubject(eventType string) string {
	return fmt.Sprintf(SubjectEventType, eventType)
}
