package types

import "encoding/json"

// Server -> Client realtime frames.
//
// The backend sends either {"type": T, "payload": {...}} or a flat object
// with the payload fields next to "type". Frame normalizes both so callers
// only ever look at Payload.
type FrameType string

const (
	FrameConnected            FrameType = "WS_CONNECTED"
	FrameQueuePosition        FrameType = "QUEUE_POSITION"
	FrameAccessGranted        FrameType = "ACCESS_GRANTED"
	FrameAutoPromote          FrameType = "AUTO_PROMOTE"
	FrameQuotaUpdate          FrameType = "QUOTA_UPDATE"
	FrameQuotaUpdated         FrameType = "QUOTA_UPDATED"
	FrameSeatStatusUpdate     FrameType = "SEAT_STATUS_UPDATE"
	FrameSeatsRegenerated     FrameType = "SEATS_REGENERATED"
	FrameWorkshopCreated      FrameType = "WORKSHOP_CREATED"
	FrameApprovalRequest      FrameType = "APPROVAL_REQUEST"
	FramePasswordResetRequest FrameType = "PASSWORD_RESET_REQUEST"
	FrameAISuggestionReady    FrameType = "AI_SUGGESTION_READY"
)

type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (f *Frame) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type    FrameType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f.Type = raw.Type
	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		f.Payload = raw.Payload
		return nil
	}
	// flat frame: the whole object doubles as the payload
	f.Payload = append(json.RawMessage(nil), b...)
	return nil
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(f.Payload, v)
}

// IsPromotion reports whether the frame tells a waiting user they're in.
func (f Frame) IsPromotion() bool {
	return f.Type == FrameAccessGranted || f.Type == FrameAutoPromote
}

type QueuePositionPayload struct {
	Position             int  `json:"position"`
	EstimatedWaitMinutes int  `json:"estimatedWaitMinutes"`
	EstimatedWaitSeconds *int `json:"estimatedWaitSeconds,omitempty"`
	ActiveCount          int  `json:"activeCount"`
	Limit                int  `json:"limit,omitempty"`
}

type SeatStatusPayload struct {
	SeatID     string     `json:"seatId"`
	Status     SeatStatus `json:"status"`
	ReservedBy *string    `json:"reservedBy"`
}

type SeatsRegeneratedPayload struct {
	SessionID string `json:"sessionId"`
	Quota     int    `json:"quota,omitempty"`
}

type QuotaUpdatePayload struct {
	ClassID  string `json:"classId"`
	Enrolled int    `json:"enrolled"`
	Quota    int    `json:"quota,omitempty"`
}

type WorkshopCreatedPayload struct {
	Name         string `json:"name"`
	WorkshopType string `json:"workshopType"`
	Date         string `json:"date"`
}

type ApprovalRequestPayload struct {
	Name string `json:"name"`
	NIM  string `json:"nim"`
}

type PasswordResetPayload struct {
	NIM string `json:"nim"`
}

type AISuggestionPayload struct {
	Count int `json:"count"`
}
