package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReconcileMessage asks the worker to sync one prediction with the provider
type ReconcileMessage struct {
	PredictionID string    `json:"prediction_id"`
	OwnerID      string    `json:"owner_id"`
	Attempt      int       `json:"attempt"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Next returns the message for the following poll
func (m ReconcileMessage) Next(now time.Time) ReconcileMessage {
	m.Attempt++
	m.EnqueuedAt = now
	return m
}

// DecodeReconcileMessage parses and validates a message body
func DecodeReconcileMessage(body []byte) (ReconcileMessage, error) {
	var msg ReconcileMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ReconcileMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg.PredictionID = strings.TrimSpace(msg.PredictionID)
	msg.OwnerID = strings.TrimSpace(msg.OwnerID)
	if msg.PredictionID == "" || msg.OwnerID == "" {
		return ReconcileMessage{}, fmt.Errorf("%w: prediction_id and owner_id are required", ErrInvalidPayload)
	}
	if msg.Attempt < 0 {
		msg.Attempt = 0
	}
	return msg, nil
}
