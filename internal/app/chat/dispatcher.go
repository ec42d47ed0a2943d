package chat

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"itamchat/internal/pkg/logx"
)

// Dispatcher fans events out to every peer registered for a chat.
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logx.Component("Dispatcher"),
	}
}

// Broadcast encodes event once and delivers it to a snapshot of chatID's peers.
// A peer that fails delivery is unregistered and closed with "try again later";
// the others are unaffected.
// It returns the number of peers the frame was queued for.
func (d *Dispatcher) Broadcast(chatID uuid.UUID, event OutboundEvent) int {
	frame, err := Encode(event)
	if err != nil {
		d.logger.Error().Err(err).Str("event_type", string(event.Type())).Msg("Error marshaling event for broadcast.")
		return 0
	}

	delivered := 0
	for _, peer := range d.registry.Snapshot(chatID) {
		if err := peer.Deliver(frame); err != nil {
			d.logger.Warn().
				Err(err).
				Str("chat_id", chatID.String()).
				Msg("Peer delivery failed, unregistering.")

			d.registry.Unregister(chatID, peer)
			closePeer(peer, websocket.CloseTryAgainLater, err.Error())
			continue
		}
		delivered++
	}

	return delivered
}

// closePeer closes peer with a websocket close code when it carries one.
func closePeer(peer Peer, code int, reason string) {
	if c, ok := peer.(interface{ CloseWith(code int, reason string) }); ok {
		c.CloseWith(code, reason)
		return
	}
	peer.Close()
}
