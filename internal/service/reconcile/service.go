package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// Outcome classifies what an event did.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
)

// Ignore reasons reported back to providers.
const (
	ReasonMessageNotFound   = "message not found"
	ReasonUnhandledStatus   = "unhandled status"
	ReasonRecipientNotFound = "recipient not found"
	ReasonMissingMessageID  = "missing sg_message_id"
	ReasonUnhandledEvent    = "unhandled event"
)

// Result is the outcome of one callback or event.
type Result struct {
	Outcome Outcome `json:"status"`
	Reason  string  `json:"reason,omitempty"`
}

func ignored(reason string) Result { return Result{Outcome: OutcomeIgnored, Reason: reason} }

// Summary aggregates one email events delivery.
type Summary struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	Ignored   int `json:"ignored"`
	Errors    int `json:"errors"`
}

// Service reconciles provider reports. Alerts and Notifier are optional.
type Service struct {
	store    Store
	alerts   AlertRecorder
	notifier CampaignNotifier
	now      func() time.Time
}

// NewService creates a reconciler.
func NewService(store Store, alerts AlertRecorder, notifier CampaignNotifier) *Service {
	return &Service{
		store:    store,
		alerts:   alerts,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// campaignStatusFor maps a message status onto its campaign recipient.
func campaignStatusFor(s domain.MessageStatus) domain.CampaignRecipientStatus {
	switch s {
	case domain.MessageDelivered:
		return domain.CampaignRecipientDelivered
	case domain.MessageRead:
		return domain.CampaignRecipientRead
	case domain.MessageFailed:
		return domain.CampaignRecipientFailed
	}
	return domain.CampaignRecipientSent
}

// ApplyCallback applies a generic delivery callback for channel ch.
// It returns ErrInvalidPayload when the id or status is missing.
func (s *Service) ApplyCallback(ctx context.Context, ch domain.Channel, cb Callback) (Result, error) {
	if cb.MessageID == "" || cb.Status == "" {
		return Result{}, ErrInvalidPayload
	}
	status, known := domain.ParseCallbackStatus(cb.Status)
	now := s.now()

	var (
		res      Result
		snapshot domain.OutboundMessage
		found    bool
		fin      *domain.Finalization
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.LockMessage(ctx, cb.OrganizationID, ch, cb.MessageID)
		if errors.Is(err, ErrNotFound) {
			res = ignored(ReasonMessageNotFound)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock message: %w", err)
		}
		found = true
		snapshot = *m
		if !known {
			res = ignored(ReasonUnhandledStatus)
			return nil
		}

		next := status.MessageStatus()
		if !m.Status.CanTransition(next) {
			res = Result{Outcome: OutcomeUnchanged}
			return nil
		}
		m.Status = next
		m.ProviderStatus = string(status)
		m.UpdatedAt = now
		switch next {
		case domain.MessageDelivered:
			m.DeliveredAt = &now
		case domain.MessageRead:
			if m.DeliveredAt == nil {
				m.DeliveredAt = &now
			}
		case domain.MessageFailed:
			m.FailedAt = &now
			if cb.Error != "" {
				m.Error = cb.Error
			} else if m.Error == "" {
				m.Error = "Provider reported " + string(status)
			}
		}
		if err := tx.SaveMessage(ctx, m); err != nil {
			return fmt.Errorf("save message: %w", err)
		}

		if m.CampaignID != nil {
			link := CampaignLink{MessageID: m.ID}
			if err := tx.AdvanceCampaignRecipient(ctx, link, campaignStatusFor(next), m.Error, now); err != nil {
				return fmt.Errorf("advance campaign recipient: %w", err)
			}
			if fin, err = tx.FinalizeCampaign(ctx, *m.CampaignID, now); err != nil {
				return fmt.Errorf("finalize campaign: %w", err)
			}
		}

		res = Result{Outcome: OutcomeUpdated}
		if next == domain.MessageFailed {
			res.Outcome = OutcomeFailed
			if err := s.suppressContact(ctx, tx, m, status); err != nil {
				return err
			}
		}
		snapshot = *m
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if found {
		s.record(ctx, &domain.ProviderEvent{
			OrganizationID:    snapshot.OrganizationID,
			Channel:           ch,
			ProviderMessageID: cb.MessageID,
			Status:            cb.Status,
			Payload:           cb.Raw,
			LatencyMs:         latencySince(snapshot.SentAt, now),
			ReceivedAt:        now,
		})
	}
	if res.Outcome == OutcomeFailed {
		s.alert(ctx, snapshot.OrganizationID, fmt.Sprintf("%s delivery failed: %s", ch, snapshot.Error), map[string]any{
			"message_id": snapshot.ID,
			"channel":    string(ch),
			"status":     cb.Status,
		})
	}
	s.notify(ctx, fin)
	log.Printf("[Reconcile] %s callback %s status=%s outcome=%s", ch, logger.RedactIdentifier(cb.MessageID), cb.Status, res.Outcome)
	return res, nil
}

func (s *Service) suppressContact(ctx context.Context, tx Tx, m *domain.OutboundMessage, status domain.CallbackStatus) error {
	c, err := tx.GetContact(ctx, m.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	identifier := domain.NormalizeIdentifier(m.Channel, c.Destination(m.Channel))
	if identifier == "" {
		return nil
	}
	reason := domain.ReasonProviderFailure
	if status == domain.CallbackBounced {
		reason = domain.ReasonHardBounce
	}
	_, err = tx.Suppress(ctx, &domain.Suppression{
		OrganizationID: m.OrganizationID,
		Channel:        m.Channel,
		Identifier:     identifier,
		Reason:         reason,
		Source:         domain.SourceProviderCallback,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

// ApplyEmailEvents applies each event in its own transaction. A failing
// event is logged and counted and does not stop the rest.
func (s *Service) ApplyEmailEvents(ctx context.Context, events []domain.EmailEvent) Summary {
	sum := Summary{Received: len(events)}
	for _, ev := range events {
		res, err := s.ApplyEmailEvent(ctx, ev)
		if err != nil {
			sum.Errors++
			logger.Error("email event not applied", "event", string(ev.Event),
				"message_id", logger.RedactIdentifier(ev.MessageID), "error", err)
			continue
		}
		switch res.Outcome {
		case OutcomeIgnored:
			sum.Ignored++
		case OutcomeUnchanged:
			sum.Unchanged++
		default:
			sum.Applied++
		}
	}
	return sum
}

// suppressionReasonFor maps failure events onto suppression reasons.
func suppressionReasonFor(ev domain.EmailEventType) domain.SuppressionReason {
	switch ev {
	case domain.EmailEventDropped:
		return domain.ReasonDropped
	case domain.EmailEventSpamReport:
		return domain.ReasonSpamReport
	case domain.EmailEventUnsubscribe:
		return domain.ReasonUnsubscribe
	}
	return domain.ReasonHardBounce
}

// ApplyEmailEvent applies one email provider event.
func (s *Service) ApplyEmailEvent(ctx context.Context, ev domain.EmailEvent) (Result, error) {
	id := StripMessageID(ev.MessageID)
	if id == "" {
		return ignored(ReasonMissingMessageID), nil
	}
	now := s.now()

	var (
		res      Result
		snapshot domain.EmailRecipient
		found    bool
		fin      *domain.Finalization
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.LockRecipient(ctx, id)
		if errors.Is(err, ErrNotFound) {
			res = ignored(ReasonRecipientNotFound)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock recipient: %w", err)
		}
		found = true
		snapshot = *r

		link := CampaignLink{EmailRecipientID: r.ID}
		switch ev.Event {
		case domain.EmailEventBounce, domain.EmailEventDropped, domain.EmailEventSpamReport:
			if !r.Status.CanTransition(domain.RecipientFailed) {
				res = Result{Outcome: OutcomeUnchanged}
				return nil
			}
			delta := domain.JobDelta{Failed: 1}
			if r.Status.CountsAsSent() {
				delta.Sent = -1
			}
			r.Status = domain.RecipientFailed
			r.Error = ev.Reason
			if r.Error == "" {
				r.Error = string(ev.Event)
			}
			r.UpdatedAt = now
			if err := tx.SaveRecipient(ctx, r); err != nil {
				return fmt.Errorf("save recipient: %w", err)
			}
			if err := tx.AddJobCounters(ctx, r.JobID, delta); err != nil {
				return fmt.Errorf("adjust job counters: %w", err)
			}
			if err := tx.AdvanceCampaignRecipient(ctx, link, domain.CampaignRecipientFailed, r.Error, now); err != nil {
				return fmt.Errorf("advance campaign recipient: %w", err)
			}
			if err := s.suppressEmail(ctx, tx, r, suppressionReasonFor(ev.Event)); err != nil {
				return err
			}
			res = Result{Outcome: OutcomeFailed}

		case domain.EmailEventDelivered:
			// A queued recipient is still owned by the job run, which counts
			// the send itself.
			switch r.Status {
			case domain.RecipientSent, domain.RecipientRead:
			default:
				res = Result{Outcome: OutcomeUnchanged}
				return nil
			}
			if err := tx.AdvanceCampaignRecipient(ctx, link, domain.CampaignRecipientDelivered, "", now); err != nil {
				return fmt.Errorf("advance campaign recipient: %w", err)
			}
			res = Result{Outcome: OutcomeUpdated}

		case domain.EmailEventOpen:
			if !r.Status.CanTransition(domain.RecipientRead) {
				res = Result{Outcome: OutcomeUnchanged}
				return nil
			}
			r.Status = domain.RecipientRead
			r.ReadAt = &now
			r.UpdatedAt = now
			if err := tx.SaveRecipient(ctx, r); err != nil {
				return fmt.Errorf("save recipient: %w", err)
			}
			if err := tx.AdvanceCampaignRecipient(ctx, link, domain.CampaignRecipientRead, "", now); err != nil {
				return fmt.Errorf("advance campaign recipient: %w", err)
			}
			res = Result{Outcome: OutcomeUpdated}

		case domain.EmailEventUnsubscribe:
			if err := s.suppressEmail(ctx, tx, r, domain.ReasonUnsubscribe); err != nil {
				return err
			}
			if err := tx.AdvanceCampaignRecipient(ctx, link, domain.CampaignRecipientUnsubscribed, "", now); err != nil {
				return fmt.Errorf("advance campaign recipient: %w", err)
			}
			res = Result{Outcome: OutcomeUpdated}

		default:
			res = ignored(ReasonUnhandledEvent)
			return nil
		}

		if fin, err = tx.FinalizeJob(ctx, r.JobID, now); err != nil {
			return fmt.Errorf("finalize job: %w", err)
		}
		snapshot = *r
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if found {
		var sentAt *time.Time
		if ev.Timestamp > 0 {
			t := time.Unix(ev.Timestamp, 0).UTC()
			sentAt = &t
		}
		s.record(ctx, &domain.ProviderEvent{
			OrganizationID:    snapshot.OrganizationID,
			Channel:           domain.ChannelEmail,
			ProviderMessageID: id,
			Status:            string(ev.Event),
			Payload:           ev.Raw,
			LatencyMs:         latencySince(sentAt, now),
			ReceivedAt:        now,
		})
	}
	if res.Outcome == OutcomeFailed {
		s.alert(ctx, snapshot.OrganizationID, fmt.Sprintf("email %s for %s: %s", ev.Event, logger.RedactEmail(snapshot.Email), snapshot.Error), map[string]any{
			"email_job_id": snapshot.JobID,
			"recipient_id": snapshot.ID,
			"channel":      string(domain.ChannelEmail),
			"event":        string(ev.Event),
		})
	}
	s.notify(ctx, fin)
	return res, nil
}

func (s *Service) suppressEmail(ctx context.Context, tx Tx, r *domain.EmailRecipient, reason domain.SuppressionReason) error {
	_, err := tx.Suppress(ctx, &domain.Suppression{
		OrganizationID: r.OrganizationID,
		Channel:        domain.ChannelEmail,
		Identifier:     domain.NormalizeIdentifier(domain.ChannelEmail, r.Email),
		Reason:         reason,
		Source:         domain.SourceEmailEvents,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

// latencySince returns milliseconds between from and now, or nil.
func latencySince(from *time.Time, now time.Time) *int64 {
	if from == nil || from.IsZero() || now.Before(*from) {
		return nil
	}
	ms := now.Sub(*from).Milliseconds()
	return &ms
}

func (s *Service) record(ctx context.Context, e *domain.ProviderEvent) {
	if err := s.store.RecordProviderEvent(ctx, e); err != nil {
		logger.Warn("provider event not recorded", "status", e.Status, "error", err)
	}
}

func (s *Service) alert(ctx context.Context, orgID, message string, meta map[string]any) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Record(ctx, orgID, domain.AlertDeliveryFailure, domain.SeverityWarning, message, meta); err != nil {
		logger.Warn("alert could not be recorded", "category", domain.AlertDeliveryFailure, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, f *domain.Finalization) {
	if s.notifier == nil || f == nil || !f.CampaignFinalized {
		return
	}
	if err := s.notifier.CampaignFinished(ctx, f); err != nil {
		logger.Error("campaign notification failed", "campaign_id", f.CampaignID, "error", err)
	}
}
