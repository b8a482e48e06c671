// Package compare runs the paid screenshot-comparison operation end to end:
// quota gate, screenshot persistence, vision analysis, report storage.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HasnainAli-max/pixel-proof-2/internal/events"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/quota"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
	"github.com/HasnainAli-max/pixel-proof-2/internal/vision"
)

// MaxImageBytes caps a single screenshot upload.
const MaxImageBytes = 8 << 20

var (
	// ErrBadImage means an upload is not a supported image or is too large.
	ErrBadImage = errors.New("unsupported or oversized image")
	// ErrVisionFailed means the model call or report decoding failed.
	ErrVisionFailed = errors.New("vision analysis failed")
)

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// Upload is one screenshot received from the client.
type Upload struct {
	Data []byte
}

// QuotaGate authorizes one paid operation.
type QuotaGate interface {
	Consume(ctx context.Context, user *model.User) (*quota.Grant, error)
}

// ObjectStore persists screenshot bytes.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// VisionAPI produces a diff report from two screenshots.
type VisionAPI interface {
	Compare(ctx context.Context, before, after vision.Image) (*vision.Report, string, error)
}

// Publisher pushes comparison lifecycle events to the owner.
type Publisher interface {
	Publish(userID int64, ev events.Event)
}

type Service struct {
	quota       QuotaGate
	objects     ObjectStore
	vision      VisionAPI
	comparisons *store.ComparisonStore
	publisher   Publisher
	logger      *slog.Logger
}

func NewService(
	gate QuotaGate,
	objects ObjectStore,
	visionAPI VisionAPI,
	comparisons *store.ComparisonStore,
	publisher Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		quota:       gate,
		objects:     objects,
		vision:      visionAPI,
		comparisons: comparisons,
		publisher:   publisher,
		logger:      logger,
	}
}

// Run executes one comparison for the user. Quota errors pass through
// unwrapped so the handler can map them to response codes.
func (s *Service) Run(ctx context.Context, user *model.User, before, after Upload) (*model.Comparison, *quota.Grant, error) {
	beforeImg, err := sniff(before)
	if err != nil {
		return nil, nil, err
	}
	afterImg, err := sniff(after)
	if err != nil {
		return nil, nil, err
	}

	// Gate before any side effects so a denied request burns nothing.
	grant, err := s.quota.Consume(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	beforeKey := fmt.Sprintf("comparisons/%s/before.%s", id, imageExtensions[beforeImg.ContentType])
	afterKey := fmt.Sprintf("comparisons/%s/after.%s", id, imageExtensions[afterImg.ContentType])

	if _, err := s.comparisons.Create(id, user.ID, beforeKey, afterKey); err != nil {
		return nil, grant, fmt.Errorf("create comparison: %w", err)
	}
	s.setProcessing(id, user.ID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.objects.Put(gctx, beforeKey, beforeImg.Data, beforeImg.ContentType) })
	g.Go(func() error { return s.objects.Put(gctx, afterKey, afterImg.Data, afterImg.ContentType) })
	if err := g.Wait(); err != nil {
		s.fail(id, user.ID, "INTERNAL")
		return nil, grant, fmt.Errorf("store screenshots: %w", err)
	}

	report, raw, err := s.vision.Compare(ctx, beforeImg, afterImg)
	if err != nil {
		s.logger.Error("vision compare", "comparison_id", id, "error", err)
		s.fail(id, user.ID, "VISION_FAILED")
		return nil, grant, fmt.Errorf("%w: %v", ErrVisionFailed, err)
	}

	if err := s.comparisons.MarkComplete(id, report.Summary, report.MatchScore, raw); err != nil {
		return nil, grant, fmt.Errorf("store report: %w", err)
	}
	s.publisher.Publish(user.ID, events.Event{
		Type:         "comparison",
		ComparisonID: id,
		Status:       model.ComparisonComplete,
		Summary:      report.Summary,
	})

	c, err := s.comparisons.GetByID(id)
	if err != nil {
		return nil, grant, err
	}
	return c, grant, nil
}

func (s *Service) setProcessing(id string, userID int64) {
	if err := s.comparisons.MarkProcessing(id); err != nil {
		s.logger.Error("mark processing", "comparison_id", id, "error", err)
	}
	s.publisher.Publish(userID, events.Event{
		Type:         "comparison",
		ComparisonID: id,
		Status:       model.ComparisonProcessing,
	})
}

func (s *Service) fail(id string, userID int64, code string) {
	if err := s.comparisons.MarkFailed(id, code); err != nil {
		s.logger.Error("mark failed", "comparison_id", id, "error", err)
	}
	s.publisher.Publish(userID, events.Event{
		Type:         "comparison",
		ComparisonID: id,
		Status:       model.ComparisonFailed,
		ErrorCode:    code,
	})
}

// sniff validates the upload and determines its content type from the bytes,
// not from whatever the client claimed.
func sniff(u Upload) (vision.Image, error) {
	if len(u.Data) == 0 || len(u.Data) > MaxImageBytes {
		return vision.Image{}, ErrBadImage
	}
	contentType := http.DetectContentType(u.Data)
	if _, ok := imageExtensions[contentType]; !ok {
		return vision.Image{}, ErrBadImage
	}
	return vision.Image{Data: u.Data, ContentType: contentType}, nil
}
