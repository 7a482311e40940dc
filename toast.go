package main

import (
	"strconv"
	"sync/atomic"
)

// Toast represents a notification message to show on the narrator's screen
type Toast struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

var toastCounter atomic.Int64

func newToast(toastType, message string) Toast {
	return Toast{
		ID:      strconv.FormatInt(toastCounter.Add(1), 10),
		Type:    toastType,
		Message: message,
	}
}

// sendErrorToast sends an error toast to a single screen
func sendErrorToast(client *Client, message string) {
	t := newToast("error", message)
	client.sendFrame(Frame{Type: FrameToast, Toast: &t})
}

// broadcastToast shows a toast on every connected screen
func (h *Hub) broadcastToast(toastType, message string) {
	t := newToast(toastType, message)
	h.publish(Frame{Type: FrameToast, Toast: &t})
}
