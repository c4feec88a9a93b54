package types

// Queue wire shapes.
//
// POST /queue/join:
//   success, queuePosition, estimatedWaitMinutes, estimatedWaitSeconds
//
// GET /queue/status:
//   inQueue, status ("WAITING" | "ACTIVE"), position, estimatedWaitMinutes,
//   estimatedWaitSeconds, activeCount, remainingSeconds
//
// estimatedWaitSeconds is optional; when absent the minutes value is used.

type QueuePhase string

const (
	QueueWaiting QueuePhase = "WAITING"
	QueueActive  QueuePhase = "ACTIVE"
)

type JoinResult struct {
	Success              bool   `json:"success"`
	QueuePosition        *int   `json:"queuePosition,omitempty"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
	EstimatedWaitSeconds *int   `json:"estimatedWaitSeconds,omitempty"`
	Message              string `json:"message,omitempty"`
}

func (j JoinResult) WaitSeconds() int {
	return waitSeconds(j.EstimatedWaitSeconds, j.EstimatedWaitMinutes)
}

type QueueStatus struct {
	InQueue              bool       `json:"inQueue"`
	Status               QueuePhase `json:"status"`
	Position             int        `json:"position"`
	EstimatedWaitMinutes int        `json:"estimatedWaitMinutes"`
	EstimatedWaitSeconds *int       `json:"estimatedWaitSeconds,omitempty"`
	ActiveCount          int        `json:"activeCount"`
	RemainingSeconds     int        `json:"remainingSeconds,omitempty"`
	Limit                int        `json:"limit,omitempty"`
}

func (q QueueStatus) WaitSeconds() int {
	return waitSeconds(q.EstimatedWaitSeconds, q.EstimatedWaitMinutes)
}

// Promoted follows the server convention that position 0 means ACTIVE.
func (q QueueStatus) Promoted() bool {
	return q.Status == QueueActive || q.Position == 0
}

func (p QueuePositionPayload) WaitSeconds() int {
	return waitSeconds(p.EstimatedWaitSeconds, p.EstimatedWaitMinutes)
}

func waitSeconds(secs *int, minutes int) int {
	if secs != nil {
		return *secs
	}
	return minutes * 60
}

type QueueMetrics struct {
	Limit        int `json:"limit"`
	ActiveCount  int `json:"activeCount"`
	WaitingCount int `json:"waitingCount"`
}

type QueueUser struct {
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	NIM       string `json:"nim,omitempty"`
	Position  int    `json:"position,omitempty"`
	JoinedAt  string `json:"joinedAt,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}
