package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// Format renders the title and body shown for f. ok is false for frame
// types that never become notifications.
func Format(f types.Frame) (title, body string, ok bool) {
	switch f.Type {
	case types.FrameWorkshopCreated:
		var p types.WorkshopCreatedPayload
		_ = f.Decode(&p)
		kind := p.WorkshopType
		if kind == "" {
			kind = "General"
		}
		body = fmt.Sprintf(`"%s" (%s) has been added`, p.Name, kind)
		if p.Date != "" {
			body += " on " + p.Date
		}
		return "New Workshop Available", body + ".", true

	case types.FrameQuotaUpdated:
		var p types.QuotaUpdatePayload
		_ = f.Decode(&p)
		return "Seat Quota Updated", fmt.Sprintf("A workshop's quota has been updated to %d seats.", p.Quota), true

	case types.FrameApprovalRequest:
		var p types.ApprovalRequestPayload
		_ = f.Decode(&p)
		return "New Registration Request", fmt.Sprintf("%s (NIM: %s) is waiting for your approval.", p.Name, p.NIM), true

	case types.FramePasswordResetRequest:
		var p types.PasswordResetPayload
		_ = f.Decode(&p)
		return "Password Reset Request", fmt.Sprintf("Student with NIM %s has requested a password reset.", p.NIM), true

	case types.FrameAISuggestionReady:
		var p types.AISuggestionPayload
		_ = f.Decode(&p)
		plural := "s"
		if p.Count == 1 {
			plural = ""
		}
		return "AI Insights Ready", fmt.Sprintf("%d workshop suggestion%s generated. Check AI Insights tab.", p.Count, plural), true
	}
	return "", "", false
}

// TimeAgo is the coarse relative time shown next to each entry.
func TimeAgo(ts, now time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

// Badge caps the unread counter at "9+". Zero renders empty.
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 9:
		return "9+"
	default:
		return strconv.Itoa(unread)
	}
}
