package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/DoyleJ11/siasat-client/pkg/types"
)

// AvailableWorkshops lists sessions open for registration. params becomes
// the query string verbatim.
func (c *Client) AvailableWorkshops(ctx context.Context, params url.Values) (types.WorkshopList, error) {
	var l types.WorkshopList
	err := c.get(ctx, "/workshops/available?"+params.Encode(), &l)
	return l, err
}

func (c *Client) Workshop(ctx context.Context, workshopID string) (types.WorkshopDetails, error) {
	var d types.WorkshopDetails
	if err := requireID("workshopId", workshopID); err != nil {
		return d, err
	}
	err := c.get(ctx, "/workshops/"+url.PathEscape(workshopID), &d)
	return d, err
}

// Seats fetches the seat grid of one session. A blank session id is rejected
// locally.
func (c *Client) Seats(ctx context.Context, sessionID string) (types.SeatList, error) {
	var l types.SeatList
	if strings.TrimSpace(sessionID) == "" {
		return l, invalid("sessionId", "Invalid workshop session. Please try again.")
	}
	err := c.get(ctx, "/workshops/sessions/"+url.PathEscape(sessionID)+"/seats", &l)
	return l, err
}

func (c *Client) ReserveSeat(ctx context.Context, seatID string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("seatId", seatID); err != nil {
		return ack, err
	}
	err := c.post(ctx, "/workshops/seats/"+url.PathEscape(seatID)+"/reserve", nil, &ack)
	return ack, err
}

func (c *Client) ReleaseSeat(ctx context.Context, seatID string) (types.Ack, error) {
	var ack types.Ack
	if err := requireID("seatId", seatID); err != nil {
		return ack, err
	}
	err := c.del(ctx, "/workshops/seats/"+url.PathEscape(seatID)+"/reserve", &ack)
	return ack, err
}

type MySeatReservation struct {
	Success     bool                   `json:"success"`
	Reservation *types.SeatReservation `json:"reservation"`
}

func (c *Client) MySeatReservation(ctx context.Context) (MySeatReservation, error) {
	var r MySeatReservation
	err := c.get(ctx, "/workshops/my-seat-reservation", &r)
	return r, err
}
