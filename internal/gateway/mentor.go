package gateway

import (
	"context"
	"net/url"
	"strconv"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func (c *Client) MentorWorkshops(ctx context.Context) (types.MentorWorkshops, error) {
	var m types.MentorWorkshops
	err := c.get(ctx, "/mentor/workshops", &m)
	return m, err
}

func (c *Client) CreateWorkshop(ctx context.Context, in types.WorkshopInput) (types.Ack, error) {
	var ack types.Ack
	if err := validateWorkshop(in); err != nil {
		return ack, err
	}
	err := c.post(ctx, "/mentor/workshops", in, &ack)
	return ack, err
}

func (c *Client) UpdateWorkshop(ctx context.Context, sessionID string, in types.WorkshopInput) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("sessionId", sessionID); err != nil {
		return ack, err
	}
	if err := validateWorkshop(in); err != nil {
		return ack, err
	}
	err := c.put(ctx, "/mentor/workshops/"+url.PathEscape(sessionID), in, &ack)
	return ack, err
}

func validateWorkshop(in types.WorkshopInput) error {
	if in.Name == "" || in.Code == "" {
		return invalid("", "Workshop name and code are required")
	}
	if in.Credits < 0 || in.Quota < 1 {
		return invalid("quota", "must be a positive number")
	}
	if in.SeatsEnabled && (in.Rows < 1 || in.Cols < 1) {
		return invalid("rows", "seat layout needs at least one row and column")
	}
	return nil
}

func (c *Client) EnrolledStudents(ctx context.Context, sessionID string) (types.StudentList, error) {
	var l types.StudentList
	if err := requireID("sessionId", sessionID); err != nil {
		return l, err
	}
	err := c.get(ctx, "/mentor/workshops/"+url.PathEscape(sessionID)+"/students", &l)
	return l, err
}

func (c *Client) UpdateQuota(ctx context.Context, sessionID string, quota int) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("sessionId", sessionID); err != nil {
		return ack, err
	}
	if quota < 1 {
		return ack, invalid("quota", "must be a positive number")
	}
	err := c.post(ctx, "/mentor/workshops/quota", map[string]any{"classId": sessionID, "quota": quota}, &ack)
	return ack, err
}

// Users lists accounts; status is "all", "PENDING", "ACTIVE" and so on.
func (c *Client) Users(ctx context.Context, status string) (types.UserList, error) {
	var l types.UserList
	if status == "" {
		status = "all"
	}
	err := c.get(ctx, "/mentor/users?status="+url.QueryEscape(status), &l)
	return l, err
}

func (c *Client) ApproveUser(ctx context.Context, userID string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("userId", userID); err != nil {
		return ack, err
	}
	err := c.post(ctx, "/mentor/users/"+url.PathEscape(userID)+"/approve", nil, &ack)
	return ack, err
}

func (c *Client) RejectUser(ctx context.Context, userID string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("userId", userID); err != nil {
		return ack, err
	}
	err := c.del(ctx, "/mentor/users/"+url.PathEscape(userID), &ack)
	return ack, err
}

func (c *Client) Students(ctx context.Context) (types.StudentList, error) {
	var l types.StudentList
	err := c.get(ctx, "/mentor/students", &l)
	return l, err
}

// SetCreditLimit takes the raw user input so a malformed number fails
// locally instead of reaching the server as NaN.
func (c *Client) SetCreditLimit(ctx context.Context, studentID, maxCredits string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("studentId", studentID); err != nil {
		return ack, err
	}
	n, err := strconv.Atoi(maxCredits)
	if err != nil || n < 1 {
		return ack, invalid("maxCredits", "must be a positive whole number")
	}
	err = c.put(ctx, "/mentor/students/"+url.PathEscape(studentID)+"/credit-limit", map[string]int{"maxCredits": n}, &ack)
	return ack, err
}

func (c *Client) Feedback(ctx context.Context) (types.FeedbackSummary, error) {
	var f types.FeedbackSummary
	err := c.get(ctx, "/mentor/feedback", &f)
	return f, err
}

func (c *Client) PasswordResets(ctx context.Context) (types.PasswordResetList, error) {
	var l types.PasswordResetList
	err := c.get(ctx, "/mentor/password-resets", &l)
	return l, err
}

func (c *Client) ApprovePasswordReset(ctx context.Context, requestID string) (types.Ack, error) {
	return c.decidePasswordReset(ctx, requestID, "approve")
}

func (c *Client) RejectPasswordReset(ctx context.Context, requestID string) (types.Ack, error) {
	return c.decidePasswordReset(ctx, requestID, "reject")
}

func (c *Client) decidePasswordReset(ctx context.Context, requestID, verdict string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("requestId", requestID); err != nil {
		return ack, err
	}
	err := c.post(ctx, "/mentor/password-resets/"+url.PathEscape(requestID)+"/"+verdict, nil, &ack)
	return ack, err
}

// AISuggestions is cache-first on the server; refresh forces regeneration.
func (c *Client) AISuggestions(ctx context.Context, refresh bool) (types.AISuggestions, error) {
	var s types.AISuggestions
	err := c.get(ctx, "/mentor/ai-suggestions?refresh="+strconv.FormatBool(refresh), &s)
	return s, err
}
