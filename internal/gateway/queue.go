package gateway

import (
	"context"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

func (c *Client) JoinQueue(ctx context.Context) (types.JoinResult, error) {
	var res types.JoinResult
	err := c.post(ctx, "/queue/join", nil, &res)
	return res, err
}

func (c *Client) QueueStatus(ctx context.Context) (types.QueueStatus, error) {
	var st types.QueueStatus
	err := c.get(ctx, "/queue/status", &st)
	return st, err
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.post(ctx, "/queue/heartbeat", nil, nil)
}

func (c *Client) QueueMetrics(ctx context.Context) (types.QueueMetrics, error) {
	var m types.QueueMetrics
	err := c.get(ctx, "/queue/metrics", &m)
	return m, err
}

func (c *Client) SetQueueLimit(ctx context.Context, limit int) (types.Ack, error) {
	var ack types.Ack
	if limit < 1 {
		return ack, invalid("limit", "must be a positive number")
	}
	err := c.post(ctx, "/queue/limit", map[string]int{"limit": limit}, &ack)
	return ack, err
}

func (c *Client) ActiveQueueUsers(ctx context.Context) (types.QueueUserList, error) {
	var l types.QueueUserList
	err := c.get(ctx, "/queue/active-users", &l)
	return l, err
}

func (c *Client) WaitingQueueUsers(ctx context.Context) (types.QueueUserList, error) {
	var l types.QueueUserList
	err := c.get(ctx, "/queue/waiting-users", &l)
	return l, err
}
