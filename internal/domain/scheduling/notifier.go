package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HansFred87/Mindease/internal/platform/ws"
)

// SessionStartedEvent is the payload pushed to a patient when their counselor
// opens the session.
type SessionStartedEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	CounselorName string    `json:"counselor_name"`
}

// Notifier delivers session lifecycle events to patients. Delivery is best
// effort: implementations must not block the caller and failures are logged,
// never returned into the state transition.
type Notifier interface {
	SessionStarted(ctx context.Context, patientID uuid.UUID, ev SessionStartedEvent)
}

// HubNotifier publishes events onto the websocket hub, addressed to the
// patient's personal topic.
type HubNotifier struct {
	pub ws.EventPublisher
	log zerolog.Logger
}

func NewHubNotifier(pub ws.EventPublisher, log zerolog.Logger) *HubNotifier {
	return &HubNotifier{pub: pub, log: log}
}

func (n *HubNotifier) SessionStarted(ctx context.Context, patientID uuid.UUID, ev SessionStartedEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("marshal session_started event")
		return
	}
	if err := n.pub.Publish(ctx, ws.Event{
		Type:      "session_started",
		Topic:     ws.UserTopic(patientID),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}); err != nil {
		n.log.Error().Err(err).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("publish session_started event")
	}
}
