package jobs

import (
	"log"
	"time"

	"github.com/mainamwangi/soko_chat/websocket"
)

var hub *websocket.Hub

const maxSubscriptionStall = 2 * time.Minute

func InitHubJobs(h *websocket.Hub) {
	hub = h
}

// SweepStalledSubscriptions closes fan-out subscriptions whose consumer
// stopped draining and logs hub occupancy. Scheduled from main.
func SweepStalledSubscriptions() {
	if hub == nil {
		return
	}
	pruned := hub.Sweep(maxSubscriptionStall)
	conversations, sessions := hub.Stats()
	if pruned > 0 {
		log.Printf("Hub sweep: pruned %d stalled subscriptions", pruned)
	}
	log.Printf("Hub stats: %d conversations with %d live sessions", conversations, sessions)
}
