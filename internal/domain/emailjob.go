package domain

import "time"

// EmailJobStatus enumerates the lifecycle states of an email job.
type EmailJobStatus string

const (
	JobQueued    EmailJobStatus = "queued"
	JobSending   EmailJobStatus = "sending"
	JobCompleted EmailJobStatus = "completed"
	JobFailed    EmailJobStatus = "failed"
)

// IsTerminal returns true if the job is in a final state.
func (s EmailJobStatus) IsTerminal() bool { return s == JobCompleted || s == JobFailed }

// RecipientStatus enumerates the per-recipient state machine of a job.
type RecipientStatus string

const (
	RecipientQueued  RecipientStatus = "queued"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientSkipped RecipientStatus = "skipped"
	RecipientRead    RecipientStatus = "read"
)

// recipientTransitions covers sends and provider events. failed -> queued
// is the operator "retry failed" path.
var recipientTransitions = map[RecipientStatus][]RecipientStatus{
	RecipientQueued:  {RecipientSent, RecipientFailed, RecipientSkipped},
	RecipientSent:    {RecipientRead, RecipientFailed},
	RecipientRead:    {RecipientFailed},
	RecipientFailed:  {RecipientQueued},
	RecipientSkipped: {},
}

// CanTransition reports whether a recipient may move from s to next.
func (s RecipientStatus) CanTransition(next RecipientStatus) bool {
	for _, allowed := range recipientTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Finalized reports whether the recipient no longer waits for a send.
func (s RecipientStatus) Finalized() bool { return s != RecipientQueued }

// CountsAsSent reports whether the recipient contributes to sent_count.
func (s RecipientStatus) CountsAsSent() bool { return s == RecipientSent || s == RecipientRead }

// Exclusion reasons recorded when partitioning the contact pool.
const (
	ExclusionMissingEmail = "missing email"
	ExclusionInvalidEmail = "invalid email"
	ExclusionDuplicate    = "duplicate email"
	ExclusionBlocked      = "contact blocked"
	ExclusionUnsubscribed = "contact unsubscribed"
	ExclusionBounced      = "contact bounced"
)

// MaxStoredExclusions caps the exclusion list persisted on a job.
const MaxStoredExclusions = 200

// Exclusion is a contact dropped from a job before any send attempt.
type Exclusion struct {
	ContactID string `json:"contact_id"`
	Email     string `json:"email,omitempty"`
	Reason    string `json:"reason"`
}

// Attachment is a file sent with every email of a job.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
	Size        int64  `json:"size"`
}

// MaxAttachmentSize is the per-file upload limit.
const MaxAttachmentSize = 10 * 1024 * 1024

// AllowedAttachmentTypes lists the accepted MIME types.
var AllowedAttachmentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/zip": true,
}

// EmailJob is a single rendered message broadcast to many recipients.
type EmailJob struct {
	ID              string         `json:"id" db:"id"`
	OrganizationID  string         `json:"organization_id" db:"organization_id"`
	CampaignID      *string        `json:"campaign_id,omitempty" db:"campaign_id"`
	Subject         string         `json:"subject" db:"subject"`
	BodyHTML        string         `json:"body_html" db:"body_html"`
	BodyText        string         `json:"body_text" db:"body_text"`
	FooterHTML      string         `json:"footer_html" db:"footer_html"`
	Attachments     []Attachment   `json:"attachments,omitempty" db:"attachments"`
	Status          EmailJobStatus `json:"status" db:"status"`
	TotalRecipients int            `json:"total_recipients" db:"total_recipients"`
	SentCount       int            `json:"sent_count" db:"sent_count"`
	FailedCount     int            `json:"failed_count" db:"failed_count"`
	SkippedCount    int            `json:"skipped_count" db:"skipped_count"`
	ExcludedCount   int            `json:"excluded_count" db:"excluded_count"`
	Exclusions      []Exclusion    `json:"exclusions" db:"exclusions"`
	Error           string         `json:"error,omitempty" db:"error"`
	StartedAt       *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Body returns the HTML body, falling back to the text body.
func (j *EmailJob) Body() string {
	if j.BodyHTML != "" {
		return j.BodyHTML
	}
	return j.BodyText
}

// EmailRecipient is one recipient of an email job.
type EmailRecipient struct {
	ID                string          `json:"id" db:"id"`
	JobID             string          `json:"job_id" db:"job_id"`
	OrganizationID    string          `json:"organization_id" db:"organization_id"`
	ContactID         *string         `json:"contact_id,omitempty" db:"contact_id"`
	Email             string          `json:"email" db:"email"`
	FullName          string          `json:"full_name" db:"full_name"`
	CompanyName       string          `json:"company_name,omitempty" db:"company_name"`
	Status            RecipientStatus `json:"status" db:"status"`
	Error             string          `json:"error,omitempty" db:"error"`
	SentAt            *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ReadAt            *time.Time      `json:"read_at,omitempty" db:"read_at"`
	RetryCount        int             `json:"retry_count" db:"retry_count"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	SignedToken       string          `json:"-" db:"signed_token"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// JobDelta is an atomic adjustment to an email job's counters.
type JobDelta struct {
	Sent    int
	Failed  int
	Skipped int
}

// IsZero reports whether the delta changes nothing.
func (d JobDelta) IsZero() bool { return d.Sent == 0 && d.Failed == 0 && d.Skipped == 0 }

// Finalization reports what the finalization step changed for one job and
// its campaign. Flags are set only on the call that made the transition.
type Finalization struct {
	OrganizationID    string
	JobID             string
	JobStatus         EmailJobStatus
	JobFinalized      bool
	CampaignID        string
	CampaignName      string
	CampaignStatus    CampaignStatus
	CampaignFinalized bool
	SentCount         int
	FailedCount       int
}

// TerminalJobStatus is the status a job takes once every recipient is
// finalized.
func TerminalJobStatus(failedCount int) EmailJobStatus {
	if failedCount == 0 {
		return JobCompleted
	}
	return JobFailed
}

// TerminalCampaignStatus is the status a campaign takes once no recipient
// is queued.
func TerminalCampaignStatus(failedCount int) CampaignStatus {
	if failedCount == 0 {
		return CampaignCompleted
	}
	return CampaignFailed
}
