// Package admission decides whether a submission may be committed: it
// throttles the client, validates the applicant fields and the attachment,
// and rejects applicants who already applied for the role within the
// retention window. Admission performs no writes.
package admission

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/server/ratelimit"
	"github.com/jonathan/hiring-intake/internal/types"
	"github.com/jonathan/hiring-intake/internal/validation"
)

// Throttle reports whether a client may submit now.
type Throttle interface {
	Allow(ctx context.Context, clientID string) (bool, ratelimit.Info)
}

// ApplicationFinder loads the latest application for a normalized
// applicant and role submitted at or after since. It returns nil when none.
type ApplicationFinder interface {
	FindRecentApplication(ctx context.Context, nationalID, role string, since time.Time) (*db.Application, error)
}

// Attachment is the uploaded document of a submission.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is one raw application as received from a client.
type Submission struct {
	ClientID   string
	Fields     validation.Fields
	Attachment *Attachment
}

// Admitted is a submission that passed every check, ready to commit.
type Admitted struct {
	Fields               validation.Fields
	NationalIDNormalized string
	RoleNormalized       string
	SubmittedAt          time.Time
	Attachment           Attachment
	RateLimit            ratelimit.Info
}

// Options configures a Pipeline.
type Options struct {
	Retention           time.Duration
	MaxUploadBytes      int64
	AllowedContentTypes []string
	StoreTimeout        time.Duration
}

// Pipeline runs the admission checks in order.
type Pipeline struct {
	throttle Throttle
	finder   ApplicationFinder
	opts     Options
	allowed  map[string]bool
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Pipeline. A nil throttle admits every client.
func New(throttle Throttle, finder ApplicationFinder, opts Options, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(opts.AllowedContentTypes))
	for _, ct := range opts.AllowedContentTypes {
		allowed[normalizeContentType(ct)] = true
	}
	return &Pipeline{
		throttle: throttle,
		finder:   finder,
		opts:     opts,
		allowed:  allowed,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Admit checks sub and returns the admitted submission, or a typed error
// from internal/types or internal/validation describing the rejection.
func (p *Pipeline) Admit(ctx context.Context, sub Submission) (*Admitted, error) {
	var info ratelimit.Info
	if p.throttle != nil {
		var ok bool
		ok, info = p.throttle.Allow(ctx, sub.ClientID)
		if !ok {
			p.metrics.IncSubmission(metrics.OutcomeThrottled)
			return nil, &types.ThrottledError{Limit: info.Limit, ResetAt: info.ResetTime, RetryAfter: info.RetryAfter}
		}
	}

	fields := validation.Sanitize(sub.Fields)
	if err := validation.Validate(fields); err != nil {
		p.metrics.IncSubmission(metrics.OutcomeRejected)
		return nil, err
	}

	attachment, err := p.checkAttachment(sub.Attachment)
	if err != nil {
		p.metrics.IncSubmission(metrics.OutcomeRejected)
		return nil, err
	}

	now := p.now().UTC()
	admitted := &Admitted{
		Fields:               fields,
		NationalIDNormalized: db.NormalizeNationalID(fields.NationalID),
		RoleNormalized:       db.NormalizeRole(fields.TargetRole),
		SubmittedAt:          ParseSubmittedAt(fields.SubmittedAt, now),
		Attachment:           attachment,
		RateLimit:            info,
	}

	if err := p.checkDuplicate(ctx, admitted, now); err != nil {
		return nil, err
	}
	return admitted, nil
}

func (p *Pipeline) checkAttachment(a *Attachment) (Attachment, error) {
	if a == nil || len(a.Data) == 0 {
		return Attachment{}, &types.ValidationError{Message: "an attachment is required", Fields: []string{"attachment"}}
	}
	size := int64(len(a.Data))
	if p.opts.MaxUploadBytes > 0 && size > p.opts.MaxUploadBytes {
		return Attachment{}, &types.PayloadTooLargeError{Size: size, Limit: p.opts.MaxUploadBytes}
	}
	contentType := normalizeContentType(a.ContentType)
	if len(p.allowed) > 0 && !p.allowed[contentType] {
		return Attachment{}, &types.ValidationError{
			Message: "attachment type " + quoteOrEmpty(contentType) + " is not accepted",
			Fields:  []string{"attachment"},
		}
	}
	return Attachment{Filename: a.Filename, ContentType: contentType, Data: a.Data}, nil
}

func (p *Pipeline) checkDuplicate(ctx context.Context, a *Admitted, now time.Time) error {
	if p.finder == nil {
		return nil
	}
	if p.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.StoreTimeout)
		defer cancel()
	}

	since := now.Add(-p.opts.Retention)
	prior, err := p.finder.FindRecentApplication(ctx, a.NationalIDNormalized, a.RoleNormalized, since)
	if err != nil {
		p.logger.Error("duplicate check failed",
			zap.String("role", a.RoleNormalized), zap.Error(err))
		p.metrics.IncSubmission(metrics.OutcomeStoreError)
		return &types.StoreError{Op: "duplicate check", Cause: err}
	}
	if prior == nil {
		return nil
	}

	submittedAt := prior.SubmittedAt
	reapplyAfter := prior.SubmittedAt.Add(p.opts.Retention)
	p.metrics.IncSubmission(metrics.OutcomeDuplicate)
	return &types.DuplicateError{
		Role:         prior.TargetRole,
		SubmittedAt:  &submittedAt,
		ReapplyAfter: &reapplyAfter,
	}
}

// ParseSubmittedAt reads an RFC 3339 timestamp or a YYYY-MM-DD date. Blank
// or unparseable values fall back to now, and future values are clamped to
// now so a record can never outlive its retention window.
func ParseSubmittedAt(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, raw); err != nil {
			return now
		}
	}
	if t.After(now) {
		return now
	}
	return t.UTC()
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "(none)"
	}
	return "\"" + s + "\""
}
