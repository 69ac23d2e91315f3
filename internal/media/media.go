// Package media holds the models describing what can be downloaded
// from a source URL, and the Resolver component which answers that
// question by delegating to an extraction engine.
package media

import "errors"

var (
	// ErrInvalidURL indicates the provided URL is syntactically malformed.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedSource indicates the extraction engine has no
	// extractor capable of handling the (well-formed) URL.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrInvalidFormat indicates the requested format ID is not one the
	// engine recognises for the URL. Detected before any bytes transfer.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUpstream wraps any other engine failure: network errors,
	// geo-blocks, removed content, the engine binary misbehaving.
	ErrUpstream = errors.New("upstream failure")
)

// EncodingOption is one selectable encoding of a piece of media. The
// wire names mirror what the extraction engine reports for each format.
type EncodingOption struct {
	FormatID   string `json:"format_id"`
	Note       string `json:"format_note"`
	Container  string `json:"ext"`
	Resolution string `json:"resolution"`
	SizeBytes  *int64 `json:"filesize"`
	AudioCodec string `json:"acodec"`
	VideoCodec string `json:"vcodec"`
}

// Metadata is the immutable result of resolving a URL: identifying
// information plus the ordered sequence of encodings available for
// download. It is produced fresh on every resolve; nothing in the core
// caches it.
type Metadata struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	ThumbnailURL    string           `json:"thumbnail"`
	DurationSeconds float64          `json:"duration"`
	Uploader        string           `json:"uploader"`
	Formats         []EncodingOption `json:"formats"`
}
