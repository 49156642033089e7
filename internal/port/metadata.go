package port

import (
	"context"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

// MetadataClient reads build, language, edition and file metadata
type MetadataClient interface {
	// ListBuilds returns known builds, optionally filtered by search
	ListBuilds(ctx context.Context, search string, sortByDate bool) ([]domain.BuildSummary, error)

	// ListLanguages returns language code to display name for an update
	ListLanguages(ctx context.Context, updateID string) (map[string]string, error)

	// ListEditions returns the edition names available for an update and language
	ListEditions(ctx context.Context, updateID, lang string) ([]string, error)

	// GetManifest returns the file manifest for an update; lang and edition may be empty
	GetManifest(ctx context.Context, updateID, lang, edition string) (*domain.Manifest, error)
}
