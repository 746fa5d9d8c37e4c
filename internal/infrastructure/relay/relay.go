// Package relay carries update events between service instances so clients
// connected to any instance see every broadcast.
package relay

import (
	"context"
	"encoding/json"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
)

// forward decodes a relayed update frame and hands it to the local hub.
func forward(ctx context.Context, local hub.Broadcaster, log logger.Logger, payload []byte) {
	var event hub.UpdateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Warnf("Dropping malformed relay message: %v", err)
		return
	}
	if err := local.Broadcast(ctx, event); err != nil {
		log.Errorf("Failed to broadcast relayed %s/%s: %v", event.Resource, event.Action, err)
	}
}
