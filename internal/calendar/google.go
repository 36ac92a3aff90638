package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/jjtheshooterr/autobot/internal/conversation"
	"github.com/jjtheshooterr/autobot/internal/schedule"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Config selects one of two credential modes: a service account key
// (CredentialsJSON) or an OAuth2 refresh token. The refresh-token mode
// hands token lifetime entirely to the oauth2 token source, which
// refreshes and caches access tokens in memory as needed.
type Config struct {
	CalendarID      string
	Timezone        string
	CredentialsJSON []byte
	ClientID        string
	ClientSecret    string
	RefreshToken    string
}

// GoogleClient talks to one Google Calendar: free/busy reads plus event
// writes for finalized bookings.
type GoogleClient struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
	logger     *logging.Logger
}

func NewGoogleClient(ctx context.Context, cfg Config, logger *logging.Logger) (*GoogleClient, error) {
	if cfg.CalendarID == "" {
		return nil, errors.New("calendar: calendar id is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		jwtCfg, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(jwtCfg.Client(ctx)))
	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarScope},
		}
		source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opts = append(opts, option.WithTokenSource(oauth2.ReuseTokenSource(nil, source)))
	default:
		return nil, errors.New("calendar: either credentials json or a refresh token is required")
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}

	return &GoogleClient{
		svc:        svc,
		calendarID: cfg.CalendarID,
		timezone:   cfg.Timezone,
		logger:     logger,
	}, nil
}

var _ conversation.Calendar = (*GoogleClient)(nil)

// BusyBlocks queries free/busy for the window and returns the busy
// periods. Declined or transparent events do not appear.
func (c *GoogleClient) BusyBlocks(ctx context.Context, rangeStart, rangeEnd time.Time) ([]schedule.BusyBlock, error) {
	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: rangeStart.Format(time.RFC3339),
		TimeMax: rangeEnd.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar: freebusy response missing calendar %q", c.calendarID)
	}
	for _, calErr := range cal.Errors {
		return nil, fmt.Errorf("calendar: freebusy error: %s", calErr.Reason)
	}

	blocks := make([]schedule.BusyBlock, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end: %w", err)
		}
		blocks = append(blocks, schedule.BusyBlock{Start: start, End: end})
	}
	return blocks, nil
}

// CreateReservation inserts the booking event and returns its id.
func (c *GoogleClient) CreateReservation(ctx context.Context, r conversation.Reservation) (string, error) {
	event := &gcal.Event{
		Summary:     r.Summary,
		Description: r.Description,
		Start: &gcal.EventDateTime{
			DateTime: r.Start.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: r.End.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}

	c.logger.Info("reservation created", "event_id", created.Id, "start", r.Start)
	return created.Id, nil
}

// UpdateReservationNotes replaces an event's description.
func (c *GoogleClient) UpdateReservationNotes(ctx context.Context, eventID, notes string) error {
	_, err := c.svc.Events.Patch(c.calendarID, eventID, &gcal.Event{
		Description: notes,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: patch event %s: %w", eventID, err)
	}
	return nil
}
