package stages

// MediaKind identifies the broad class of a source file. Validate assigns it
// from the filename extension and later stages branch on it.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// Rendition is one processed variant of the source, identified by its
// resolution label ("1080p", "720p", "480p").
type Rendition struct {
	Label string
	Path  string
}

// Published is a rendition after publication, carrying the URL clients use.
// When object storage is disabled or unavailable the URL is the local path.
type Published struct {
	Label string
	URL   string
	Path  string
}

// Context carries a task through the pipeline. Validate fills the source
// fields, thumbnail/convert/watermark append their artifacts, publish records
// where they ended up, finalize consumes the lot.
type Context struct {
	TaskID    string
	UserID    string
	InputPath string

	Kind      MediaKind
	SizeBytes int64

	ThumbnailPath string
	Converted     []Rendition
	Watermarked   []Rendition

	Uploaded     []Published
	ThumbnailURL string
}
