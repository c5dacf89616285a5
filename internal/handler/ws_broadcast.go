package handler

import "github.com/SWCCGArena/rando/internal/service"

// BroadcastWorkerEvent implements service.Broadcaster using the WebSocket
// hub. Status transitions go to everyone so worker lists stay live;
// board and decision traffic only reaches that worker's subscribers.
func (h *Hub) BroadcastWorkerEvent(workerName, eventType string, data any) {
	event := WSEvent{
		Type:   eventType,
		Worker: workerName,
		Data:   data,
	}
	switch eventType {
	case service.EventStatusChange, service.EventWorkerOffline, service.EventGameEnded:
		h.BroadcastToAll(event)
	default:
		h.BroadcastToWorker(workerName, event)
	}
}
