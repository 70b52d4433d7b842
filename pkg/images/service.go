// Package images keeps one row per image URL and the links from canonical entities to those rows.
// An image row lives exactly as long as at least one link references it.
package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ImageStore interface {
	GetByURL(ctx context.Context, url string) (*models.Image, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Image, error)
	Insert(ctx context.Context, url string, meta models.ImageMetadata) (uuid.UUID, bool, error)
	FillMetadata(ctx context.Context, id uuid.UUID, meta models.ImageMetadata) error
	ReferenceCount(ctx context.Context, id uuid.UUID) (int, error)
	DeleteIfUnreferenced(ctx context.Context, id uuid.UUID) (bool, error)
}

type LinkStore interface {
	Exists(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID, category string) (bool, error)
	Insert(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID, category string) (bool, error)
	Delete(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID) (int64, error)
}

// Transactor runs fn in one transaction. database.DB satisfies it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LocalMedia describes where locally hosted image files live.
type LocalMedia struct {
	URLPrefix string
	Root      string
}

type Service struct {
	images   ImageStore
	links    LinkStore
	tx       Transactor
	media    LocalMedia
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewService(images ImageStore, links LinkStore, tx Transactor, media LocalMedia, logger ectologger.Logger) *Service {
	return &Service{
		images:   images,
		links:    links,
		tx:       tx,
		media:    media,
		validate: validator.New(),
		logger:   logger,
	}
}

// UpsertImage returns the id of the image with this exact URL, creating it when absent. Metadata
// only fills fields that are still null.
func (s *Service) UpsertImage(ctx context.Context, url string, meta models.ImageMetadata) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "images.Service.UpsertImage")
	defer span.End()

	if strings.TrimSpace(url) == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "image url is required")
	}

	existing, err := s.images.GetByURL(ctx, url)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, s.images.FillMetadata(ctx, existing.ID, meta)
	}

	id, inserted, err := s.images.Insert(ctx, url, meta)
	if err != nil {
		return uuid.Nil, err
	}
	if inserted {
		return id, nil
	}

	// lost an insert race on the url constraint
	existing, err = s.images.GetByURL(ctx, url)
	if err != nil {
		return uuid.Nil, err
	}
	if existing == nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "image %s vanished after conflicting insert", url)
	}
	return existing.ID, s.images.FillMetadata(ctx, existing.ID, meta)
}

// LinkImage reports whether a new link was created.
func (s *Service) LinkImage(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID, category string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "images.Service.LinkImage")
	defer span.End()

	if category == "" {
		category = models.DefaultImageCategory
	}

	exists, err := s.links.Exists(ctx, parentType, parentID, imageID, category)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return s.links.Insert(ctx, parentType, parentID, imageID, category)
}

type DeleteResult struct {
	LinksRemoved int64 `json:"links_removed"`
	ImageDeleted bool  `json:"image_deleted"`
	FileRemoved  bool  `json:"file_removed"`
}

// DeleteLink removes every link between the parent and the image, then deletes the image row if
// nothing references it anymore. A locally hosted file is removed only after the row deletion
// commits.
func (s *Service) DeleteLink(ctx context.Context, parentType models.EntityType, parentID, imageID uuid.UUID) (*DeleteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "images.Service.DeleteLink")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"parent_type": parentType,
		"parent_id":   parentID,
		"image_id":    imageID,
	})

	result := &DeleteResult{}
	var url string

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		img, err := s.images.Get(ctx, imageID)
		if err != nil {
			return err
		}
		if img == nil {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "image %s not found", imageID)
		}
		url = img.URL

		removed, err := s.links.Delete(ctx, parentType, parentID, imageID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "image %s is not linked to %s %s", imageID, parentType, parentID)
		}
		result.LinksRemoved = removed

		refs, err := s.images.ReferenceCount(ctx, imageID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return nil
		}

		result.ImageDeleted, err = s.images.DeleteIfUnreferenced(ctx, imageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.ImageDeleted {
		metrics.RecordImageDeleted()
		removed, err := s.removeLocalFile(url)
		if err != nil {
			// the row is gone; an orphaned file is logged, not surfaced
			log.WithError(err).WithField("url", url).Warn("Failed to remove local image file")
		}
		result.FileRemoved = removed
	}

	log.WithFields(map[string]any{
		"links_removed": result.LinksRemoved,
		"image_deleted": result.ImageDeleted,
		"file_removed":  result.FileRemoved,
	}).Info("Removed image link")

	return result, nil
}

// localPath maps a locally hosted URL to a file under the media root. ok is false for remote URLs
// and for paths escaping the root.
func (s *Service) localPath(url string) (string, bool) {
	if s.media.URLPrefix == "" || s.media.Root == "" || !strings.HasPrefix(url, s.media.URLPrefix) {
		return "", false
	}

	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(url, s.media.URLPrefix)))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(s.media.Root, rel), true
}

func (s *Service) removeLocalFile(url string) (bool, error) {
	path, ok := s.localPath(url)
	if !ok {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SyncEntityImages upserts and links every reference. Problems with one image never stop the
// others; they come back as change entries.
func (s *Service) SyncEntityImages(ctx context.Context, parentType models.EntityType, parentID uuid.UUID, externalID string, refs []models.ImageRef) []models.Change {
	ctx, span := tracing.StartSpan(ctx, "images.Service.SyncEntityImages")
	defer span.End()

	var changes []models.Change
	note := func(kind models.ChangeKind, msg string) {
		changes = append(changes, models.Change{
			Kind:       kind,
			EntityType: parentType,
			ExternalID: externalID,
			Field:      "images",
			Message:    msg,
		})
	}

	for _, ref := range refs {
		if ref.Category == "" {
			ref.Category = models.DefaultImageCategory
		}
		if err := s.validate.Struct(ref); err != nil {
			note(models.ChangeDegraded, fmt.Sprintf("invalid image reference %q: %v", ref.URL, err))
			continue
		}

		imageID, err := s.UpsertImage(ctx, ref.URL, ref.Metadata)
		if err != nil {
			note(models.ChangeFailed, fmt.Sprintf("image %s: %v", ref.URL, err))
			continue
		}

		linked, err := s.LinkImage(ctx, parentType, parentID, imageID, ref.Category)
		if err != nil {
			note(models.ChangeFailed, fmt.Sprintf("link image %s: %v", ref.URL, err))
			continue
		}
		if linked {
			note(models.ChangeImage, fmt.Sprintf("linked %s as %s", ref.URL, ref.Category))
		}
	}

	return changes
}
