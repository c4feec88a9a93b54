package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// Enroll registers for a session, optionally with the seat already held.
func (c *Client) Enroll(ctx context.Context, sessionID, seatID string) (types.EnrollResult, error) {
	var res types.EnrollResult
	if strings.TrimSpace(sessionID) == "" {
		return res, invalid("sessionId", "Invalid workshop session. Please try again.")
	}
	body := map[string]string{"classId": sessionID}
	if seatID != "" {
		body["seatId"] = seatID
	}
	err := c.post(ctx, "/enrollment/add", body, &res)
	return res, err
}

func (c *Client) Drop(ctx context.Context, enrollmentID string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("enrollmentId", enrollmentID); err != nil {
		return ack, err
	}
	err := c.del(ctx, "/enrollment/"+url.PathEscape(enrollmentID), &ack)
	return ack, err
}

func (c *Client) MyWorkshops(ctx context.Context) (types.MyWorkshops, error) {
	var m types.MyWorkshops
	err := c.get(ctx, "/enrollment/my-workshops", &m)
	return m, err
}

func (c *Client) History(ctx context.Context) (types.History, error) {
	var h types.History
	err := c.get(ctx, "/enrollment/history", &h)
	return h, err
}

// Rate submits a 1-5 star rating with an optional review.
func (c *Client) Rate(ctx context.Context, enrollmentID string, rating int, review string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("enrollmentId", enrollmentID); err != nil {
		return ack, err
	}
	if rating < 1 || rating > 5 {
		return ack, invalid("rating", "must be between 1 and 5")
	}
	body := map[string]any{"rating": rating, "review": strings.TrimSpace(review)}
	err := c.post(ctx, "/enrollment/"+url.PathEscape(enrollmentID)+"/rate", body, &ack)
	return ack, err
}
