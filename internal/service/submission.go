package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"intake/internal/model"
	"intake/internal/repository"
	"intake/internal/storage"
	"intake/internal/verifier"
)

const (
	// RecordKeyPrefix namespaces submission records in the record store.
	RecordKeyPrefix = "contact:"
	// attachmentKeyPrefix namespaces photo blobs in the blob store.
	attachmentKeyPrefix = "contact/"

	maxSafeNameLen = 80
)

var (
	ErrTokenMissing = verifier.ErrTokenMissing
	ErrStorage      = errors.New("storage failure")
)

// VerificationError is returned when the challenge token was rejected or could not be checked.
type VerificationError struct {
	Codes []string
	Err   error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return "verification failed: " + e.Err.Error()
	}
	return "verification failed: " + strings.Join(e.Codes, ",")
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Submission is the parsed public contact form plus best-effort client metadata.
type Submission struct {
	Token     string
	IP        string
	UserAgent string
	Lang      string
	Name      string
	Email     string
	Details   string
	Photos    []Photo
}

// SubmissionService runs the accept pipeline for one public contact request.
type SubmissionService interface {
	// Submit verifies the challenge token, validates the form, stores photos and the record,
	// and returns the generated submission id.
	Submit(ctx context.Context, sub Submission) (string, error)
}

// SubmissionOptions configures the pipeline.
type SubmissionOptions struct {
	Limits            Limits
	RecordTTL         time.Duration
	UploadConcurrency int
	Logger            *slog.Logger
}

// submissionService is a concrete implementation of SubmissionService.
// store and records may be nil when the corresponding backend is not configured.
type submissionService struct {
	verifier verifier.Verifier
	store    storage.Storage
	records  repository.RecordStore
	opts     SubmissionOptions
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewSubmissionService constructs a new SubmissionService.
func NewSubmissionService(v verifier.Verifier, store storage.Storage, records repository.RecordStore, opts SubmissionOptions) SubmissionService {
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &submissionService{
		verifier: v,
		store:    store,
		records:  records,
		opts:     opts,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *submissionService) Submit(ctx context.Context, sub Submission) (string, error) {
	if sub.Token == "" {
		return "", ErrTokenMissing
	}

	outcome, err := s.verifier.Verify(ctx, sub.Token, sub.IP)
	if err != nil {
		s.log.WarnContext(ctx, "turnstile verification unavailable", "error", err)
		return "", &VerificationError{Codes: []string{"internal-error"}, Err: err}
	}
	if !outcome.Success {
		return "", &VerificationError{Codes: outcome.ErrorCodes}
	}

	sub.Name = strings.TrimSpace(sub.Name)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Details = strings.TrimSpace(sub.Details)
	sub.Lang = strings.TrimSpace(sub.Lang)

	if err := ValidateFields(sub.Name, sub.Email, sub.Details); err != nil {
		return "", err
	}
	photos, err := SelectPhotos(sub.Photos, s.opts.Limits)
	if err != nil {
		return "", err
	}
	if err := SniffPhotos(photos); err != nil {
		return "", err
	}

	return s.persist(ctx, sub, photos)
}

// persist writes photos first and the record last. The stores share no transaction:
// a failed photo write leaves earlier photos in place and no record is written.
func (s *submissionService) persist(ctx context.Context, sub Submission, photos []Photo) (string, error) {
	rec := model.SubmissionRecord{
		ID:         s.newID(),
		ReceivedAt: model.FormatReceivedAt(s.now()),
		IP:         sub.IP,
		UserAgent:  sub.UserAgent,
		Lang:       sub.Lang,
		Name:       sub.Name,
		Email:      sub.Email,
		Details:    sub.Details,
		Photos:     make([]model.AttachmentRef, 0, len(photos)),
	}

	if len(photos) > 0 {
		if s.store == nil {
			s.log.WarnContext(ctx, "blob store not configured, photos dropped", "id", rec.ID, "photos", len(photos))
		} else {
			refs, err := s.uploadPhotos(ctx, rec.ID, photos)
			if err != nil {
				s.log.ErrorContext(ctx, "photo upload failed", "id", rec.ID, "error", err)
				return "", fmt.Errorf("%w: %v", ErrStorage, err)
			}
			rec.Photos = refs
		}
	}

	s.saveRecord(ctx, rec)
	return rec.ID, nil
}

func (s *submissionService) uploadPhotos(ctx context.Context, id string, photos []Photo) ([]model.AttachmentRef, error) {
	refs := make([]model.AttachmentRef, len(photos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i, p := range photos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := AttachmentKey(id, i+1, p.Filename)

			f, err := p.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", key, err)
			}
			defer f.Close()

			ct := p.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			if _, err := s.store.Put(gctx, key, f, storage.PutObjectOptions{
				Size:        p.Size,
				ContentType: ct,
				Metadata:    map[string]string{"submission-id": id},
			}); err != nil {
				return fmt.Errorf("put %s: %w", key, err)
			}

			refs[i] = model.AttachmentRef{Key: key, Name: p.Filename, Type: p.ContentType, Size: p.Size}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// saveRecord writes the record with its TTL. Without a usable record store the record is
// logged in full instead, and the submission still counts as accepted.
func (s *submissionService) saveRecord(ctx context.Context, rec model.SubmissionRecord) {
	if s.records == nil {
		s.log.InfoContext(ctx, "contact submission", "record", rec)
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		s.log.ErrorContext(ctx, "marshal contact record", "error", err, "record", rec)
		return
	}
	if err := s.records.Put(ctx, RecordKey(rec.ID), b, s.opts.RecordTTL); err != nil {
		s.log.ErrorContext(ctx, "record store write failed, submission logged instead", "error", err, "record", rec)
	}
}

// RecordKey is the record store key for a submission id.
func RecordKey(id string) string {
	return RecordKeyPrefix + id
}

// AttachmentKey derives the blob key for the seq-th photo (1-based) of a submission.
func AttachmentKey(id string, seq int, filename string) string {
	return fmt.Sprintf("%s%s/%02d-%s", attachmentKeyPrefix, id, seq, SafeFilename(filename))
}

var (
	unsafeRuns = regexp.MustCompile(`[^a-z0-9._-]+`)
	dashRuns   = regexp.MustCompile(`-+`)
)

// SafeFilename lower-cases name, replaces unsafe runs with '-', and truncates to 80 bytes.
func SafeFilename(name string) string {
	if name == "" {
		name = "photo"
	}
	s := strings.ToLower(name)
	s = unsafeRuns.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	if len(s) > maxSafeNameLen {
		s = s[:maxSafeNameLen]
	}
	return s
}
