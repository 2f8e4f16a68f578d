package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"planforge/api/internal/archive"
	"planforge/api/internal/auth"
	"planforge/api/internal/forms"
	"planforge/api/internal/ingest"
	"planforge/api/internal/otp"
	"planforge/api/internal/plan"
	"planforge/api/internal/render"
	"planforge/api/internal/search"
	"planforge/api/internal/store"
	"planforge/api/internal/util"
)

type dataStore interface {
	ListSubmissions(ctx context.Context, email string, formIDs []string) ([]store.Submission, error)
	ListAllSubmissions(ctx context.Context, email string) ([]store.Submission, error)
	IsAllowedAdmin(ctx context.Context, email string) (bool, error)
	Ping(ctx context.Context) error
}

type ingestor interface {
	Ingest(ctx context.Context, payload forms.Payload) error
}

type compositor interface {
	Compose(ctx context.Context, html string) ([]byte, error)
}

type otpStore interface {
	SaveCode(ctx context.Context, email, code string) error
	ConsumeCode(ctx context.Context, email, code string) (bool, error)
	SaveSession(ctx context.Context, jti, email string, ttl time.Duration) error
	SessionActive(ctx context.Context, jti string) (bool, error)
	RevokeSession(ctx context.Context, jti string) error
	Ping(ctx context.Context) error
}

type mailer interface {
	IsConfigured() bool
	SendSignInCode(to, code string, minutes int) error
}

type searcher interface {
	Search(ctx context.Context, q string, limit int) ([]store.ClientHit, error)
	Index(rec search.ClientRecord)
}

type archiver interface {
	Record(identity string, html []byte, companyName string) (archive.CommitInfo, error)
	History(identity string, limit int) ([]archive.CommitInfo, error)
	PlanAt(identity, hash string) ([]byte, error)
}

// Session is an authenticated admin session derived from a bearer token.
type Session struct {
	Email     string
	Role      string
	Token     string
	ExpiresAt time.Time
}

// Service wires ingestion, completeness evaluation, document generation
// and admin authentication together behind the HTTP layer.
type Service struct {
	store         dataStore
	ingestor      ingestor
	compositor    compositor
	otp           otpStore
	email         mailer
	search        searcher
	archive       archiver
	webhookToken  string
	sessionSecret []byte
	sessionTTL    time.Duration
	otpTTL        time.Duration
	manifest      forms.Manifest
	now           func() time.Time
}

type ServiceConfig struct {
	Store         dataStore
	Ingestor      ingestor
	Compositor    compositor
	OTP           otpStore
	Email         mailer
	Search        searcher
	Archive       archiver
	WebhookToken  string
	SessionSecret string
	SessionTTL    time.Duration
	OTPTTL        time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:         cfg.Store,
		ingestor:      cfg.Ingestor,
		compositor:    cfg.Compositor,
		otp:           cfg.OTP,
		email:         cfg.Email,
		search:        cfg.Search,
		archive:       cfg.Archive,
		webhookToken:  cfg.WebhookToken,
		sessionSecret: []byte(cfg.SessionSecret),
		sessionTTL:    cfg.SessionTTL,
		otpTTL:        cfg.OTPTTL,
		manifest:      forms.BusinessPlan,
		now:           time.Now,
	}
}

// IngestSubmission authenticates and stores one webhook event. The
// client record is pushed to the search index after the row lands;
// index lag is harmless, a missing row is not.
func (s *Service) IngestSubmission(ctx context.Context, token string, payload forms.Payload) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) != 1 {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook token", nil)
	}

	if err := s.ingestor.Ingest(ctx, payload); err != nil {
		if errors.Is(err, ingest.ErrMalformedSubmission) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		if errors.Is(err, ingest.ErrAssetPersist) {
			return domainError(http.StatusBadGateway, "ASSET_PERSIST_FAILED", "Could not persist submission asset", nil)
		}
		return err
	}

	if s.search != nil {
		if sub, err := ingest.Normalize(payload); err == nil {
			rec := search.ClientRecord{
				ID:          search.ClientID(sub.UserEmail),
				Email:       sub.UserEmail,
				FirstName:   deref(sub.FirstName),
				LastName:    deref(sub.LastName),
				CompanyName: deref(sub.CompanyName),
				Forms:       1,
			}
			// Fill gaps from earlier submissions so a form that carries
			// no name does not blank the indexed record.
			if rows, err := s.store.ListAllSubmissions(ctx, sub.UserEmail); err == nil {
				rec.Forms = len(rows)
				for _, row := range rows {
					if rec.FirstName == "" {
						rec.FirstName = deref(row.FirstName)
					}
					if rec.LastName == "" {
						rec.LastName = deref(row.LastName)
					}
					if rec.CompanyName == "" {
						rec.CompanyName = deref(row.CompanyName)
					}
				}
			}
			s.search.Index(rec)
		}
	}
	return nil
}

// SubmissionSummary is one stored form in the client overview.
type SubmissionSummary struct {
	FormID    string     `json:"formId"`
	FormTitle string     `json:"formTitle,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ClientOverview pairs the completeness table with everything the
// client has actually submitted, manifest form or not.
type ClientOverview struct {
	plan.Status
	CompanyName string              `json:"companyName,omitempty"`
	Submissions []SubmissionSummary `json:"submissions"`
}

// ClientStatus reports which required forms a client has submitted.
func (s *Service) ClientStatus(ctx context.Context, email string) (ClientOverview, error) {
	identity := forms.NormalizeIdentity(email)
	if identity == "" {
		return ClientOverview{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}

	status, err := plan.Evaluate(ctx, s.store, identity, s.manifest)
	if err != nil {
		return ClientOverview{}, err
	}

	rows, err := s.store.ListAllSubmissions(ctx, identity)
	if err != nil {
		return ClientOverview{}, err
	}
	summaries := make([]SubmissionSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, SubmissionSummary{
			FormID:    row.FormID,
			FormTitle: deref(row.FormTitle),
			UpdatedAt: row.EntryUpdatedAt,
		})
	}

	return ClientOverview{
		Status:      status,
		CompanyName: plan.ResolveCompanyName(rows, s.manifest),
		Submissions: summaries,
	}, nil
}

// GeneratedPlan is the outcome of one generation request.
type GeneratedPlan struct {
	Filename string
	PDF      []byte
}

// GeneratePlan assembles, renders and composes the business plan for a
// complete client. Archiving the rendered document is best effort.
func (s *Service) GeneratePlan(ctx context.Context, email string) (GeneratedPlan, error) {
	identity := forms.NormalizeIdentity(email)
	if identity == "" {
		return GeneratedPlan{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}

	model, err := plan.Build(ctx, s.store, identity, s.manifest)
	if err != nil {
		var incomplete *plan.IncompleteError
		if errors.As(err, &incomplete) {
			return GeneratedPlan{}, domainError(
				http.StatusUnprocessableEntity,
				"PLAN_INCOMPLETE",
				"Client has not submitted all required forms",
				map[string]any{"missing": incomplete.Missing},
			)
		}
		return GeneratedPlan{}, err
	}

	html, err := render.Render(model)
	if err != nil {
		return GeneratedPlan{}, domainError(http.StatusInternalServerError, "RENDER_FAILED", "Document rendering failed",
			map[string]any{"reason": err.Error()})
	}

	pdf, err := s.compositor.Compose(ctx, html)
	if err != nil {
		return GeneratedPlan{}, domainError(http.StatusBadGateway, "COMPOSE_FAILED", "Document composition failed",
			map[string]any{"reason": err.Error()})
	}

	if s.archive != nil {
		if _, err := s.archive.Record(identity, []byte(html), model.CompanyName); err != nil {
			log.Printf("archive: record plan for %s: %v", identity, err)
		}
	}

	base := model.CompanyName
	if base == "" {
		base = identity
	}
	return GeneratedPlan{
		Filename: planFilename(base),
		PDF:      pdf,
	}, nil
}

// planFilename builds the download name from the company name, dropping
// characters that break filenames or Content-Disposition headers.
func planFilename(base string) string {
	var b strings.Builder
	for _, r := range base {
		switch r {
		case '/', '\\', '?', '%', '*', ':', '|', '"', '<', '>':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if cleaned == "" {
		cleaned = "Client"
	}
	return cleaned + " Business Plan.pdf"
}

// PlanHistory lists the archived plan revisions for a client, newest
// first. A client that never generated a plan has an empty history.
func (s *Service) PlanHistory(email string, limit int) ([]archive.CommitInfo, error) {
	identity := forms.NormalizeIdentity(email)
	if identity == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Plan archiving is not configured", nil)
	}
	return s.archive.History(identity, limit)
}

// PlanRevision returns the archived document at a specific revision.
func (s *Service) PlanRevision(email, hash string) ([]byte, error) {
	identity := forms.NormalizeIdentity(email)
	if identity == "" || strings.TrimSpace(hash) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email and hash are required", nil)
	}
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Plan archiving is not configured", nil)
	}
	html, err := s.archive.PlanAt(identity, strings.TrimSpace(hash))
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No archived plan at that revision", nil)
	}
	return html, nil
}

// SearchClients looks up clients by name, email or company.
func (s *Service) SearchClients(ctx context.Context, q string, limit int) ([]store.ClientHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []store.ClientHit{}, nil
	}
	return s.search.Search(ctx, q, limit)
}

// RequestCode emails a one-time sign-in code to an allowlisted admin.
// Non-allowlisted addresses get the same success response so the
// endpoint does not reveal who is an admin.
func (s *Service) RequestCode(ctx context.Context, email string) error {
	identity := forms.NormalizeIdentity(email)
	if identity == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}

	allowed, err := s.store.IsAllowedAdmin(ctx, identity)
	if err != nil {
		return err
	}
	if !allowed {
		log.Printf("otp: code requested for non-admin %s, ignoring", identity)
		return nil
	}

	if !s.email.IsConfigured() {
		return domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email delivery is not configured", nil)
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return err
	}
	if err := s.otp.SaveCode(ctx, identity, code); err != nil {
		return err
	}
	if err := s.email.SendSignInCode(identity, code, int(s.otpTTL.Minutes())); err != nil {
		return domainError(http.StatusBadGateway, "EMAIL_SEND_FAILED", "Could not send sign-in code", nil)
	}
	return nil
}

// Login exchanges a valid one-time code for a bearer token.
func (s *Service) Login(ctx context.Context, email, code string) (Session, error) {
	identity := forms.NormalizeIdentity(email)
	if identity == "" || strings.TrimSpace(code) == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email and code are required", nil)
	}

	ok, err := s.otp.ConsumeCode(ctx, identity, strings.TrimSpace(code))
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CODE", "Sign-in code is invalid or expired", nil)
	}

	jti := util.NewID("ses")
	expiresAt := s.now().Add(s.sessionTTL)
	if err := s.otp.SaveSession(ctx, jti, identity, s.sessionTTL); err != nil {
		return Session{}, err
	}

	token, err := auth.IssueToken(s.sessionSecret, auth.Claims{
		Sub:  identity,
		Role: "admin",
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	return Session{Email: identity, Role: "admin", Token: token, ExpiresAt: expiresAt}, nil
}

// SessionFromToken verifies a bearer token and checks the backing
// session has not been revoked.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.sessionSecret, token)
	if err != nil {
		return Session{}, err
	}
	active, err := s.otp.SessionActive(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if !active {
		return Session{}, auth.ErrExpiredToken
	}
	return Session{
		Email:     claims.Sub,
		Role:      claims.Role,
		Token:     token,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the session behind a token. Invalid tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := auth.ParseToken(s.sessionSecret, token)
	if err != nil {
		return nil
	}
	return s.otp.RevokeSession(ctx, claims.JTI)
}

// Ping checks the backing stores for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store for the readiness probe.
func (s *Service) PingSessions(ctx context.Context) error {
	return s.otp.Ping(ctx)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
