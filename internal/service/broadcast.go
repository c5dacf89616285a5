package service

// Event types pushed to subscribed admin connections.
const (
	EventStatusChange  = "status_change"
	EventBoardUpdate   = "board_update"
	EventDecision      = "decision"
	EventGameEnded     = "game_ended"
	EventWorkerOffline = "worker_offline"
)

// Broadcaster sends real-time worker events to connected admin clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastWorkerEvent(workerName, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or headless runs.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastWorkerEvent(string, string, any) {}
