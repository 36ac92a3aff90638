package notify

import (
	"context"
	"fmt"

	"github.com/jjtheshooterr/autobot/internal/conversation"
	"github.com/jjtheshooterr/autobot/internal/leads"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Service emails the business owner when a booking lands or a
// conversation needs a human.
type Service struct {
	email        EmailSender
	ownerEmail   string
	businessName string
	logger       *logging.Logger
}

func NewService(email EmailSender, ownerEmail, businessName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:        email,
		ownerEmail:   ownerEmail,
		businessName: businessName,
		logger:       logger,
	}
}

var _ conversation.Notifier = (*Service)(nil)

// BookingConfirmed tells the owner a job was booked and where to go.
func (s *Service) BookingConfirmed(ctx context.Context, lead *leads.Lead, booking leads.Booking) error {
	if s.email == nil || s.ownerEmail == "" {
		s.logger.Debug("notify: email not configured, skipping booking notification")
		return nil
	}

	body := fmt.Sprintf(
		"New detail booked!\n\nWhen: %s\nAddress: %s\nPhone: %s\nLead: %s (%s)\nCalendar event: %s\nBooked at: %s\n",
		booking.SlotLabel,
		lead.Address,
		lead.Phone,
		lead.ExternalID,
		lead.Source,
		booking.EventID,
		booking.BookedAt.Format("January 2, 2006 at 3:04 PM"),
	)

	err := s.email.Send(ctx, EmailMessage{
		To:      s.ownerEmail,
		Subject: fmt.Sprintf("%s: new booking for %s", s.businessName, booking.SlotLabel),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("notify: booking email: %w", err)
	}

	s.logger.Info("booking notification sent", "lead_external_id", lead.ExternalID, "slot", booking.SlotLabel)
	return nil
}

// HandoffRequested tells the owner a lead is waiting on a human.
func (s *Service) HandoffRequested(ctx context.Context, lead *leads.Lead, reason string) error {
	if s.email == nil || s.ownerEmail == "" {
		s.logger.Debug("notify: email not configured, skipping handoff notification")
		return nil
	}

	body := fmt.Sprintf(
		"A conversation needs you.\n\nLead: %s (%s)\nReason: %s\nStatus: %s\n\nReply to them directly from the page inbox.\n",
		lead.ExternalID,
		lead.Source,
		reason,
		lead.Status,
	)

	err := s.email.Send(ctx, EmailMessage{
		To:      s.ownerEmail,
		Subject: fmt.Sprintf("%s: lead needs a human (%s)", s.businessName, reason),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("notify: handoff email: %w", err)
	}

	s.logger.Info("handoff notification sent", "lead_external_id", lead.ExternalID, "reason", reason)
	return nil
}
