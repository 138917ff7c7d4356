package atlas

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/shared"
)

// Dispatch routes one inbound transport message into the engine.
func (a *Atlas) Dispatch(ctx context.Context, msg shared.Message) error {
	switch msg.Type {
	case shared.MessageCOT:
		feat, err := decodeFeature(msg.Data)
		if err != nil {
			return err
		}
		_, err = a.Add(ctx, feat, AddOptions{})
		return err

	case shared.MessageTask:
		task, err := decodeFeature(msg.Data)
		if err != nil {
			return err
		}
		switch typ := task.Properties.Type; {
		case strings.HasPrefix(typ, shared.TaskMissionChange):
			return a.SubscriptionChange(ctx, task)
		case typ == shared.TaskDelete:
			return a.deleteTask(ctx, task)
		default:
			log.Printf("[Atlas] warning: unknown task type %s", typ)
			return nil
		}

	case shared.MessageChat:
		feat, err := decodeFeature(msg.Data)
		if err != nil {
			return err
		}
		data := map[string]any{"id": feat.ID, "remarks": feat.Properties.Remarks}
		if chat := feat.Properties.Chat; chat != nil {
			data["sender"] = chat.SenderCallsign
			data["chatroom"] = chat.Chatroom
		}
		a.notifier.Notify(shared.EventTypeChat, data)
		return nil

	case shared.MessageError:
		body := string(msg.Properties)
		if body == "" {
			body = string(msg.Data)
		}
		return fmt.Errorf("connection error: %s", body)

	default:
		log.Printf("[Atlas] warning: unknown message type %s", msg.Type)
		return nil
	}
}

// deleteTask removes the entities a t-x-d-d task links to.
func (a *Atlas) deleteTask(ctx context.Context, task ontology.Feature) error {
	if len(task.Properties.Links) == 0 {
		log.Printf("[Atlas] warning: delete task %s has no link", task.ID)
		return nil
	}
	for _, link := range task.Properties.Links {
		if err := a.Remove(ctx, link.UID, RemoveOptions{SkipNetwork: true}); err != nil {
			return err
		}
	}
	return nil
}

func decodeFeature(data json.RawMessage) (ontology.Feature, error) {
	var feat ontology.Feature
	if err := json.Unmarshal(data, &feat); err != nil {
		return ontology.Feature{}, fmt.Errorf("failed to decode feature: %w", err)
	}
	return feat, nil
}
