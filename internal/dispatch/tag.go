package dispatch

import (
	"context"
	"log"

	"github.com/dcervantes/rutalert/internal/payload"
)

// TagTransport delegates audience resolution to the broadcaster: users
// carry a route_<name> = "1" tag, synced by the mobile client, and the
// provider filters on it server-side. The registry is never read here.
type TagTransport struct {
	broadcaster Broadcaster
}

func NewTagTransport(broadcaster Broadcaster) *TagTransport {
	return &TagTransport{broadcaster: broadcaster}
}

func (t *TagTransport) SendToRoute(ctx context.Context, routeName string, n *payload.Notification) (*Result, error) {
	id, err := t.broadcaster.BroadcastToTag(ctx, "route_"+routeName, "1", n)
	if err != nil {
		return nil, err
	}

	log.Printf("Broadcast accepted for route %s (id: %s)", routeName, id)
	return &Result{BroadcastID: id}, nil
}
