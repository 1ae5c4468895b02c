package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/channel"
	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
	"github.com/jadidihosein68/osaconnect/internal/queue"
	"github.com/jadidihosein68/osaconnect/internal/service/credentials"
	"github.com/jadidihosein68/osaconnect/internal/storage"
)

// Config tunes the worker.
type Config struct {
	PerMinuteLimit int
	MaxRetries     int
	RetryDelay     time.Duration
	SendTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.PerMinuteLimit <= 0 {
		c.PerMinuteLimit = 60
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 15 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = channel.DefaultTimeout
	}
}

// Deps are the worker's collaborators. Alerts and Media are optional.
type Deps struct {
	Messages    MessageRepository
	Contacts    ContactRepository
	Suppression SuppressionChecker
	Credentials CredentialProvider
	Alerts      AlertRecorder
	Senders     *channel.Registry
	Media       storage.Store
}

// Worker executes dispatch tasks.
type Worker struct {
	Deps
	cfg Config
	now func() time.Time
}

// NewWorker creates a dispatch worker.
func NewWorker(deps Deps, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{Deps: deps, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Register binds the worker to a queue runner.
func (w *Worker) Register(r *queue.Runner) {
	r.Handle(queue.KindDispatchMessage, w.Handle, w.Policy())
}

// Policy returns the retry policy for dispatch tasks.
func (w *Worker) Policy() queue.Policy {
	return queue.Policy{
		MaxRetries:  w.cfg.MaxRetries,
		Delay:       w.cfg.RetryDelay,
		OnExhausted: w.exhausted,
	}
}

// Handle adapts Process to a queue handler.
func (w *Worker) Handle(ctx context.Context, t queue.Task) error {
	return w.Process(ctx, t.RefID)
}

// Process runs one send attempt for messageID. A nil return means the
// message reached a settled state for this attempt; an error asks the
// runner to retry.
func (w *Worker) Process(ctx context.Context, messageID string) error {
	msg, err := w.Messages.GetMessage(ctx, messageID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("[DispatchWorker] message %s no longer exists, dropping", messageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if !msg.Status.Dispatchable() {
		logger.Info("dispatch skipped, message already settled", "message_id", msg.ID, "status", string(msg.Status))
		return nil
	}

	contact, err := w.Contacts.GetContact(ctx, msg.OrganizationID, msg.ContactID)
	if errors.Is(err, ErrContactNotFound) {
		return w.fail(ctx, msg, domain.ErrTextContactInactive)
	}
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if !contact.IsActive() {
		return w.fail(ctx, msg, domain.ErrTextContactInactive)
	}

	destination := contact.Destination(msg.Channel)
	if destination == "" {
		return w.fail(ctx, msg, domain.ErrTextMissingDestination)
	}

	recent, err := w.Messages.CountRecentOnChannel(ctx, msg.Channel, w.now().Add(-time.Minute), msg.ID)
	if err != nil {
		return fmt.Errorf("count recent messages: %w", err)
	}
	if recent >= w.cfg.PerMinuteLimit {
		return w.fail(ctx, msg, domain.ErrTextThrottled)
	}

	suppressed, err := w.Suppression.IsSuppressed(ctx, msg.OrganizationID, msg.Channel, destination)
	if err != nil {
		return fmt.Errorf("check suppression: %w", err)
	}
	if suppressed {
		return w.fail(ctx, msg, domain.ErrTextSuppressed)
	}

	creds, err := w.Credentials.Resolve(ctx, msg.OrganizationID, msg.Channel.Provider())
	if err != nil {
		var rerr *credentials.ResolveError
		if !errors.As(err, &rerr) {
			return fmt.Errorf("resolve credentials: %w", err)
		}
		if failErr := w.fail(ctx, msg, rerr.Reason); failErr != nil {
			return failErr
		}
		category, severity := domain.AlertIntegrationMissing, domain.SeverityWarning
		if errors.Is(err, credentials.ErrDecrypt) {
			category, severity = domain.AlertCredentialDecrypt, domain.SeverityError
		}
		w.alert(ctx, msg, category, severity, rerr.Reason)
		return nil
	}

	sender, err := w.Senders.Get(msg.Channel)
	if err != nil {
		return w.fail(ctx, msg, err.Error())
	}

	out := channel.Message{Destination: destination, Body: msg.Body}
	if msg.MediaRef != "" {
		mediaURL, err := storage.ResolveURL(ctx, w.Media, msg.MediaRef)
		if err != nil {
			return w.fail(ctx, msg, fmt.Sprintf("Media could not be resolved: %v", err))
		}
		out.MediaURL = mediaURL
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	res, sendErr := sender.Send(sendCtx, out, creds)
	cancel()

	now := w.now()
	switch {
	case sendErr != nil:
		msg.Status = domain.MessageRetrying
		msg.Error = sendErr.Error()
		msg.RetryCount++
		if err := w.Messages.UpdateMessage(ctx, msg); err != nil {
			return fmt.Errorf("save retrying message: %w", err)
		}
		w.alert(ctx, msg, domain.AlertSendException, domain.SeverityError,
			fmt.Sprintf("%s send raised exception: %v", msg.Channel, sendErr))
		return sendErr

	case !res.Success:
		msg.Status = domain.MessageFailed
		msg.Error = res.Error
		if msg.Error == "" {
			msg.Error = domain.ErrTextUnknownSendFailure
		}
		msg.RetryCount++
		msg.FailedAt = &now
		if err := w.Messages.UpdateMessage(ctx, msg); err != nil {
			return queue.NoRetry(fmt.Errorf("save failed message: %w", err))
		}
		w.alert(ctx, msg, domain.AlertSendFailure, domain.SeverityError,
			fmt.Sprintf("%s send failed: %s", msg.Channel, msg.Error))
		return nil
	}

	msg.Status = domain.MessageSent
	msg.Error = ""
	msg.ProviderMessageID = res.ProviderMessageID
	msg.TraceID = res.ProviderMessageID
	if msg.TraceID == "" {
		msg.TraceID = domain.NewTraceID()
	}
	msg.ProviderStatus = "sent"
	msg.SentAt = &now
	if err := w.Messages.UpdateMessage(ctx, msg); err != nil {
		// The provider accepted the send; retrying would duplicate it.
		return queue.NoRetry(fmt.Errorf("save sent message: %w", err))
	}
	if err := w.Contacts.TouchLastOutbound(ctx, contact.ID, now); err != nil {
		logger.Warn("dispatch could not update contact activity", "contact_id", contact.ID, "error", err)
	}
	logger.Info("message sent", "message_id", msg.ID, "channel", string(msg.Channel),
		"trace_id", msg.TraceID, "destination", logger.RedactIdentifier(destination))
	return nil
}

// fail settles msg in FAILED with reason.
func (w *Worker) fail(ctx context.Context, msg *domain.OutboundMessage, reason string) error {
	now := w.now()
	msg.Status = domain.MessageFailed
	msg.Error = reason
	msg.FailedAt = &now
	if err := w.Messages.UpdateMessage(ctx, msg); err != nil {
		return fmt.Errorf("save failed message: %w", err)
	}
	logger.Info("message failed pre-send check", "message_id", msg.ID, "channel", string(msg.Channel), "reason", reason)
	return nil
}

// exhausted runs after the final retry fails.
func (w *Worker) exhausted(ctx context.Context, t queue.Task, cause error) {
	msg, err := w.Messages.GetMessage(ctx, t.RefID)
	if err != nil {
		log.Printf("[DispatchWorker] exhausted message %s could not be loaded: %v", t.RefID, err)
		return
	}
	if msg.Status != domain.MessageRetrying && msg.Status != domain.MessagePending {
		return
	}
	now := w.now()
	msg.Status = domain.MessageFailed
	if cause != nil {
		msg.Error = cause.Error()
	}
	msg.FailedAt = &now
	if err := w.Messages.UpdateMessage(ctx, msg); err != nil {
		log.Printf("[DispatchWorker] exhausted message %s could not be saved: %v", msg.ID, err)
		return
	}
	w.alert(ctx, msg, domain.AlertSendExhausted, domain.SeverityError,
		fmt.Sprintf("%s send gave up after %d attempts: %s", msg.Channel, t.Attempt+1, msg.Error))
}

func (w *Worker) alert(ctx context.Context, msg *domain.OutboundMessage, category string, severity domain.Severity, text string) {
	if w.Alerts == nil {
		return
	}
	meta := map[string]any{"outbound_id": msg.ID, "channel": string(msg.Channel)}
	if err := w.Alerts.Record(ctx, msg.OrganizationID, category, severity, text, meta); err != nil {
		logger.Warn("alert could not be recorded", "category", category, "error", err)
	}
}
