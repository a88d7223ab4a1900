// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Embedding constants
const (
	// EmbeddingDim is the dimension of ArcFace embeddings produced by the buffalo_l pack
	EmbeddingDim = 512

	// NormEpsilon is added to vector norms before dividing
	NormEpsilon = 1e-12

	// UnitNormTolerance is how far a stored embedding norm may drift from 1
	UnitNormTolerance = 1e-3
)

// Search constants
const (
	// DefaultSearchLimit is the default number of neighbours returned by nearest-embedding search
	DefaultSearchLimit = 5

	// MaxSearchLimit caps caller supplied search limits
	MaxSearchLimit = 100
)

// Photo constants
const (
	// PhotoJPEGQuality is the JPEG quality used for stored person photos
	PhotoJPEGQuality = 90

	// MaxUploadBytes limits decoded request bodies carrying images
	MaxUploadBytes = 20 << 20

	// MaxImagePixels caps the declared width*height of a decoded image
	MaxImagePixels = 40_000_000
)

// Processing constants
const (
	// BulkEnrollWorkers is the number of parallel image loaders for bulk enrollment.
	// Inference itself stays serialized in the extractor handle.
	BulkEnrollWorkers = 4

	// DefaultEnrollPattern selects images when enrolling from a directory
	DefaultEnrollPattern = "**/*.{jpg,jpeg,png,bmp,gif,webp}"
)

// Duplicate detection constants
const (
	// DuplicateHashDistance is the largest perceptual hash distance (in bits)
	// at which two photos of one person count as the same shot
	DuplicateHashDistance = 6
)
