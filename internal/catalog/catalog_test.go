package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/siasat-client/internal/gateway"
	"github.com/DoyleJ11/siasat-client/pkg/types"
)

type fakeAPI struct {
	mu      sync.Mutex
	status  types.QueueStatus
	avail   []types.Workshop
	mine    types.MyWorkshops
	enrolls []string
	drops   []string
	dropErr error
}

func (f *fakeAPI) QueueStatus(ctx context.Context) (types.QueueStatus, error) {
	return f.status, nil
}

func (f *fakeAPI) AvailableWorkshops(ctx context.Context, params url.Values) (types.WorkshopList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.WorkshopList{Success: true, Workshops: append([]types.Workshop(nil), f.avail...)}, nil
}

func (f *fakeAPI) MyWorkshops(ctx context.Context) (types.MyWorkshops, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mine, nil
}

func (f *fakeAPI) Enroll(ctx context.Context, sessionID, seatID string) (types.EnrollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrolls = append(f.enrolls, sessionID+"/"+seatID)
	return types.EnrollResult{Success: true, TotalCredits: f.mine.TotalCredits + 3}, nil
}

func (f *fakeAPI) Drop(ctx context.Context, enrollmentID string) (types.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, enrollmentID)
	return types.Ack{Success: f.dropErr == nil}, f.dropErr
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixture() *fakeAPI {
	return &fakeAPI{
		status: types.QueueStatus{InQueue: true, Status: types.QueueActive, RemainingSeconds: 900},
		avail: []types.Workshop{
			{SessionID: "s1", Code: "GO101", Name: "Intro to Go", Credits: 3, Quota: 20, Enrolled: 5, WorkshopType: "Technical",
				RegistrationEnd: "2026-03-20T00:00:00Z"},
			{SessionID: "s2", Code: "UX200", Name: "Design Sprint", Credits: 3, Quota: 10, Enrolled: 10, WorkshopType: "Design"},
			{SessionID: "s3", Code: "ÉCR300", Name: "Écriture Créative", Credits: 4, Quota: 15, WorkshopType: "Soft Skills",
				RegistrationEnd: "2026-03-01T00:00:00Z"},
		},
		mine: types.MyWorkshops{
			TotalCredits: 20,
			MaxCredits:   24,
			Workshops:    []types.Enrollment{{ID: "e3", SessionID: "s3", Credits: 4}},
		},
	}
}

func loaded(t *testing.T, api *fakeAPI) *Catalog {
	t.Helper()
	c := New(api, Options{Now: func() time.Time { return now }})
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoad_RequiresActiveQueueSlot(t *testing.T) {
	for _, st := range []types.QueueStatus{
		{InQueue: false},
		{InQueue: true, Status: types.QueueWaiting, Position: 3},
	} {
		api := fixture()
		api.status = st
		err := New(api, Options{}).Load(context.Background())
		assert.ErrorIs(t, err, ErrNotAdmitted)
	}
}

func TestLoad_SessionWindow(t *testing.T) {
	c := loaded(t, fixture())
	assert.Equal(t, 15*time.Minute, c.SessionLeft())
	total, limit := c.Credits()
	assert.Equal(t, 20, total)
	assert.Equal(t, 24, limit)
}

func TestEntries_Filter(t *testing.T) {
	c := loaded(t, fixture())
	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all", Filter{}, []string{"s1", "s2", "s3"}},
		{"name case-insensitive", Filter{Search: "intro"}, []string{"s1"}},
		{"code", Filter{Search: "ux2"}, []string{"s2"}},
		{"accented fold", Filter{Search: "écriture"}, []string{"s3"}},
		{"type", Filter{Type: "design"}, []string{"s2"}},
		{"type all keyword", Filter{Type: "All"}, []string{"s1", "s2", "s3"}},
		{"no match", Filter{Search: "rust"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, e := range c.Entries(tt.f) {
				got = append(got, e.SessionID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	es := c.Entries(Filter{Search: "écriture"})
	require.Len(t, es, 1)
	assert.True(t, es[0].IsEnrolled())
	assert.Equal(t, RegClosed, es[0].Registration)
}

func TestCheckAdd(t *testing.T) {
	c := loaded(t, fixture())

	_, err := c.CheckAdd("  ")
	var verr *gateway.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.CheckAdd("nope")
	assert.ErrorIs(t, err, ErrWorkshopNotFound)

	_, err = c.CheckAdd("s2")
	assert.ErrorIs(t, err, ErrWorkshopFull)
	assert.Equal(t, "This workshop is already full. No seats available.", UserMessage(err))

	w, err := c.CheckAdd("s1")
	require.NoError(t, err)
	assert.Equal(t, "GO101", w.Code)
}

func TestCheckAdd_CreditLimit(t *testing.T) {
	api := fixture()
	api.mine.TotalCredits = 22
	c := loaded(t, api)

	_, err := c.CheckAdd("s1")
	var credit *CreditLimitError
	require.ErrorAs(t, err, &credit)
	assert.Equal(t, 25, credit.TotalAfter)
	assert.Equal(t, 24, credit.Max)
	assert.Contains(t, UserMessage(err), "25 credits")

	_, err = c.Enroll(context.Background(), "s1", "")
	assert.Error(t, err)
	assert.Empty(t, api.enrolls, "blocked before the network")
}

func TestEnroll(t *testing.T) {
	api := fixture()
	c := loaded(t, api)

	res, err := c.Enroll(context.Background(), "s1", "seat-9")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"s1/seat-9"}, api.enrolls)
}

func TestDrop_BlockedAfterRegistrationEnd(t *testing.T) {
	api := fixture()
	c := loaded(t, api)

	err := c.Drop(context.Background(), "e3")
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.Equal(t, "Registration has closed. You cannot drop this workshop.", UserMessage(err))
	assert.Empty(t, api.drops)

	assert.ErrorIs(t, c.CheckDrop("missing"), ErrEnrollmentNotFound)
}

func TestDrop_ServerSaysClosed(t *testing.T) {
	api := fixture()
	api.mine.Workshops = append(api.mine.Workshops, types.Enrollment{ID: "e1", SessionID: "s1", Credits: 3})
	api.dropErr = &gateway.APIError{Status: 400, Message: "REGISTRATION_CLOSED"}
	c := loaded(t, api)

	err := c.Drop(context.Background(), "e1")
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.Equal(t, []string{"e1"}, api.drops)
}

func TestHandleFrame_QuotaUpdate(t *testing.T) {
	c := loaded(t, fixture())
	var f types.Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"QUOTA_UPDATE","classId":"s2","enrolled":9}`), &f))
	c.HandleFrame(f)

	_, err := c.CheckAdd("s2")
	assert.NoError(t, err, "a seat freed up")
}

func TestSummarize(t *testing.T) {
	s := Summarize([]types.Enrollment{
		{Credits: 3, IsCompleted: true, Rating: 4, Tuition: decimal.RequireFromString("150000.50")},
		{Credits: 2, IsCompleted: true, Tuition: decimal.RequireFromString("99999.50")},
		{Credits: 4, Tuition: decimal.RequireFromString("0")},
	})
	assert.Len(t, s.Completed, 2)
	assert.Len(t, s.Upcoming, 1)
	assert.Equal(t, 9, s.Credits)
	assert.Equal(t, 1, s.Unrated)
	assert.True(t, s.Tuition.Equal(decimal.RequireFromString("250000")))
	assert.Equal(t, "Excellent", RatingLabels[5])
}
