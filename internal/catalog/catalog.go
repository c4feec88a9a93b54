// Package catalog is the workshop selection view for a student who has been
// let through the queue: the open workshops, what they already hold, and
// the client-side checks that run before anything is sent to the server.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/internal/logging"
	"github.com/DoyleJ11/siasat-client/internal/realtime"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

var (
	ErrNotAdmitted        = errors.New("catalog: not admitted from the queue")
	ErrWorkshopNotFound   = errors.New("catalog: workshop not found")
	ErrWorkshopFull       = errors.New("catalog: workshop full")
	ErrRegistrationClosed = errors.New("catalog: registration closed")
	ErrEnrollmentNotFound = errors.New("catalog: enrollment not found")
)

// CreditLimitError blocks an add that would push the student past their
// credit limit.
type CreditLimitError struct {
	Workshop   string
	Credits    int
	TotalAfter int
	Max        int
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("adding %s (%d credits) would put you at %d credits, exceeding your limit of %d",
		e.Workshop, e.Credits, e.TotalAfter, e.Max)
}

// UserMessage extends gateway.UserMessage with the local checks above.
func UserMessage(err error) string {
	var credit *CreditLimitError
	switch {
	case errors.As(err, &credit):
		return fmt.Sprintf("Adding %s would put you at %d credits, exceeding your limit of %d credits. "+
			"Please drop another workshop first or contact your mentor to increase your credit limit.",
			credit.Workshop, credit.TotalAfter, credit.Max)
	case errors.Is(err, ErrNotAdmitted):
		return "Please wait for your turn in the queue before selecting workshops."
	case errors.Is(err, ErrWorkshopNotFound):
		return "Workshop not found"
	case errors.Is(err, ErrWorkshopFull):
		return "This workshop is already full. No seats available."
	case errors.Is(err, ErrRegistrationClosed):
		return "Registration has closed. You cannot drop this workshop."
	case errors.Is(err, ErrEnrollmentNotFound):
		return "Enrollment not found"
	}
	return gateway.UserMessage(err)
}

type API interface {
	QueueStatus(ctx context.Context) (types.QueueStatus, error)
	AvailableWorkshops(ctx context.Context, params url.Values) (types.WorkshopList, error)
	MyWorkshops(ctx context.Context) (types.MyWorkshops, error)
	Enroll(ctx context.Context, sessionID, seatID string) (types.EnrollResult, error)
	Drop(ctx context.Context, enrollmentID string) (types.Ack, error)
}

type Subscriber interface {
	Subscribe(fn realtime.Listener) (unsubscribe func())
}

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

type Catalog struct {
	api API
	log *zap.Logger
	now func() time.Time

	mu        sync.RWMutex
	workshops []types.Workshop
	mine      types.MyWorkshops
	deadline  time.Time
}

func New(api API, opts Options) *Catalog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Catalog{api: api, log: logging.OrNop(opts.Logger).Named("catalog"), now: opts.Now}
}

// Load confirms the caller is ACTIVE in the queue, then fetches the open
// workshops and the caller's enrollments side by side.
func (c *Catalog) Load(ctx context.Context) error {
	qs, err := c.api.QueueStatus(ctx)
	if err != nil {
		return fmt.Errorf("check queue: %w", err)
	}
	if !qs.InQueue || qs.Status == types.QueueWaiting {
		return ErrNotAdmitted
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	if qs.RemainingSeconds > 0 {
		c.mu.Lock()
		c.deadline = c.now().Add(time.Duration(qs.RemainingSeconds) * time.Second)
		c.mu.Unlock()
	}
	return nil
}

func (c *Catalog) refresh(ctx context.Context) error {
	var (
		avail types.WorkshopList
		mine  types.MyWorkshops
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		avail, err = c.api.AvailableWorkshops(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		mine, err = c.api.MyWorkshops(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load workshops: %w", err)
	}
	if mine.MaxCredits == 0 {
		mine.MaxCredits = types.DefaultMaxCredits
	}

	c.mu.Lock()
	c.workshops = avail.Workshops
	c.mine = mine
	c.mu.Unlock()
	c.log.Debug("catalog loaded", zap.Int("workshops", len(avail.Workshops)), zap.Int("enrolled", len(mine.Workshops)))
	return nil
}

// SessionLeft is how much of the selection window remains. Zero means the
// window is over (or the server never sent one).
func (c *Catalog) SessionLeft() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deadline.IsZero() {
		return 0
	}
	if d := c.deadline.Sub(c.now()); d > 0 {
		return d.Truncate(time.Second)
	}
	return 0
}

func (c *Catalog) Credits() (total, limit int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mine.TotalCredits, c.mine.MaxCredits
}

func (c *Catalog) Mine() []types.Enrollment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Enrollment(nil), c.mine.Workshops...)
}

type RegStatus string

const (
	RegOpen     RegStatus = "OPEN"
	RegUpcoming RegStatus = "UPCOMING"
	RegClosed   RegStatus = "CLOSED"
)

func Registration(w types.Workshop, now time.Time) RegStatus {
	start, end := w.RegistrationWindow()
	switch {
	case !start.IsZero() && now.Before(start):
		return RegUpcoming
	case !end.IsZero() && now.After(end):
		return RegClosed
	}
	return RegOpen
}

// Entry is a workshop joined with the caller's enrollment in it, if any.
type Entry struct {
	types.Workshop
	Enrollment   *types.Enrollment
	Registration RegStatus
}

func (e Entry) IsEnrolled() bool { return e.Enrollment != nil }

type Filter struct {
	Search string
	// Type matches workshopType; "" or "all" matches everything.
	Type string
}

// Entries returns the workshops matching f, in server order.
func (c *Catalog) Entries(f Filter) []Entry {
	fold := cases.Fold()
	search := fold.String(strings.TrimSpace(f.Search))
	kind := fold.String(strings.TrimSpace(f.Type))
	if kind == "all" {
		kind = ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make([]Entry, 0, len(c.workshops))
	for _, w := range c.workshops {
		if search != "" &&
			!strings.Contains(fold.String(w.Name), search) &&
			!strings.Contains(fold.String(w.Code), search) {
			continue
		}
		if kind != "" && fold.String(w.WorkshopType) != kind {
			continue
		}
		e := Entry{Workshop: w, Registration: Registration(w, now)}
		for i := range c.mine.Workshops {
			if c.mine.Workshops[i].SessionID == w.SessionID {
				en := c.mine.Workshops[i]
				e.Enrollment = &en
				break
			}
		}
		out = append(out, e)
	}
	return out
}

// CheckAdd runs the local pre-checks for enrolling in sessionID.
func (c *Catalog) CheckAdd(sessionID string) (types.Workshop, error) {
	if strings.TrimSpace(sessionID) == "" {
		return types.Workshop{}, &gateway.ValidationError{Field: "sessionId", Message: "Invalid workshop session. Please try again."}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.find(sessionID)
	if !ok {
		return types.Workshop{}, ErrWorkshopNotFound
	}
	if w.Enrolled >= w.Quota {
		return w, ErrWorkshopFull
	}
	if after := c.mine.TotalCredits + w.Credits; after > c.mine.MaxCredits {
		return w, &CreditLimitError{Workshop: w.Name, Credits: w.Credits, TotalAfter: after, Max: c.mine.MaxCredits}
	}
	return w, nil
}

func (c *Catalog) find(sessionID string) (types.Workshop, bool) {
	for _, w := range c.workshops {
		if w.SessionID == sessionID {
			return w, true
		}
	}
	return types.Workshop{}, false
}

// Enroll checks, enrolls and reloads. seatID may be empty for workshops
// without a seat map.
func (c *Catalog) Enroll(ctx context.Context, sessionID, seatID string) (types.EnrollResult, error) {
	if _, err := c.CheckAdd(sessionID); err != nil {
		return types.EnrollResult{}, err
	}
	res, err := c.api.Enroll(ctx, sessionID, seatID)
	if err != nil {
		return res, err
	}
	if res.Success {
		c.mu.Lock()
		c.mine.TotalCredits = res.TotalCredits
		c.mu.Unlock()
		if err := c.refresh(ctx); err != nil {
			c.log.Warn("reload after enroll failed", zap.Error(err))
		}
	}
	return res, nil
}

// CheckDrop refuses once the workshop's registration window has closed.
func (c *Catalog) CheckDrop(enrollmentID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var en *types.Enrollment
	for i := range c.mine.Workshops {
		if c.mine.Workshops[i].ID == enrollmentID {
			en = &c.mine.Workshops[i]
			break
		}
	}
	if en == nil {
		return ErrEnrollmentNotFound
	}
	if w, ok := c.find(en.SessionID); ok {
		if _, end := w.RegistrationWindow(); !end.IsZero() && c.now().After(end) {
			return ErrRegistrationClosed
		}
	}
	return nil
}

func (c *Catalog) Drop(ctx context.Context, enrollmentID string) error {
	if err := c.CheckDrop(enrollmentID); err != nil {
		return err
	}
	if _, err := c.api.Drop(ctx, enrollmentID); err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Has(gateway.CodeRegistrationClosed) {
			return fmt.Errorf("%w: %v", ErrRegistrationClosed, err)
		}
		return err
	}
	if err := c.refresh(ctx); err != nil {
		c.log.Warn("reload after drop failed", zap.Error(err))
	}
	return nil
}

// HandleFrame applies QUOTA_UPDATE pushes to the enrolled counts.
func (c *Catalog) HandleFrame(f types.Frame) {
	if f.Type != types.FrameQuotaUpdate {
		return
	}
	var p types.QuotaUpdatePayload
	if err := f.Decode(&p); err != nil || p.ClassID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.workshops {
		if c.workshops[i].SessionID == p.ClassID {
			c.workshops[i].Enrolled = p.Enrolled
		}
	}
}

func (c *Catalog) Attach(sub Subscriber) (detach func()) {
	return sub.Subscribe(c.HandleFrame)
}
