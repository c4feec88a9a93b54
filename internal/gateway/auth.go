package gateway

import (
	"context"
	"strings"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

const minPasswordLen = 6

func (c *Client) Login(ctx context.Context, username, password string, role types.Role) (types.LoginResult, error) {
	var res types.LoginResult
	if strings.TrimSpace(username) == "" || password == "" {
		return res, invalid("", "Please enter your NIM/NIDN and password")
	}
	if role == "" {
		role = types.RoleStudent
	}
	body := map[string]any{"username": strings.TrimSpace(username), "password": password, "role": role}
	err := c.post(ctx, loginEndpoint, body, &res)
	return res, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

// Register creates an account. confirm must repeat req.Password.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest, confirm string) (types.Ack, error) {
	var ack types.Ack
	if req.Name == "" || req.NIMNIDN == "" || req.Email == "" || req.Password == "" {
		return ack, invalid("", "Please fill in all required fields")
	}
	if req.Password != confirm {
		return ack, invalid("password", "Passwords do not match")
	}
	if len(req.Password) < minPasswordLen {
		return ack, invalid("password", "Password must be at least 6 characters")
	}
	if req.Role == "" {
		req.Role = types.RoleStudent
	}
	err := c.post(ctx, "/register", req, &ack)
	return ack, err
}

// ForgotPassword files a reset request that a mentor approves later.
func (c *Client) ForgotPassword(ctx context.Context, nim, email, newPassword, confirm string) (types.Ack, error) {
	var ack types.Ack
	nim, email = strings.TrimSpace(nim), strings.TrimSpace(email)
	if nim == "" || email == "" {
		return ack, invalid("", "Please enter your NIM and email")
	}
	if len(newPassword) < minPasswordLen {
		return ack, invalid("password", "Password must be at least 6 characters.")
	}
	if newPassword != confirm {
		return ack, invalid("password", "Passwords do not match.")
	}
	body := map[string]string{"nim": nim, "email": email, "newPassword": newPassword}
	err := c.post(ctx, "/auth/forgot-password", body, &ack)
	return ack, err
}
