// Package events defines the narrow interface the background workers use
// to push a named event at one user, without depending on the socket
// gateway that ultimately delivers it.
//
// Grounded on theRebelliousNerd-codenerd/internal/transparency's split
// between event producers (shards, campaign orchestrator) and a single
// sink interface consumers attach to, generalized from a process-wide bus
// to a per-recipient Emit call since every event here targets exactly one
// user's socket.
package events

import "context"

// Sink fans an event out to one user. The Chat Plane's socket gateway is
// the production implementation; it silently drops the emission if the
// user has no connected socket, per this system's delivery model — state
// remains in the Store for the client to pick up on reconnect.
type Sink interface {
	Emit(ctx context.Context, userID string, kind string, payload map[string]any) error
}
