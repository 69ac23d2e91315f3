package media

import (
	"context"
	"fmt"
	"net/url"
)

type (
	// Extractor is the slice of the extraction engine the resolver
	// needs: a single call which turns a URL into Metadata.
	Extractor interface {
		ExtractInfo(ctx context.Context, mediaURL string) (*Metadata, error)
	}

	// Resolver wraps the extraction engine to answer "what can be
	// downloaded from this URL". It is stateless and safe to invoke
	// concurrently for unrelated URLs; it performs no I/O beyond the
	// single delegated engine call.
	Resolver struct {
		extractor Extractor
	}
)

func NewResolver(extractor Extractor) *Resolver {
	return &Resolver{extractor: extractor}
}

// Resolve validates the URL's shape before delegating to the engine.
// Malformed URLs fail with ErrInvalidURL without ever reaching the
// engine; engine failures come back pre-classified (ErrUnsupportedSource
// or ErrUpstream) by the engine itself.
func (resolver *Resolver) Resolve(ctx context.Context, mediaURL string) (*Metadata, error) {
	if err := ValidateURL(mediaURL); err != nil {
		return nil, err
	}

	return resolver.extractor.ExtractInfo(ctx, mediaURL)
}

// ValidateURL checks the lexical shape of a media URL: absolute,
// http(s), with a host. It is the shared pre-flight used by both the
// resolver and the download orchestrator so malformed input never
// reaches the engine.
func ValidateURL(mediaURL string) error {
	if mediaURL == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidURL)
	}

	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: '%s' is not an absolute http(s) url", ErrInvalidURL, mediaURL)
	}

	return nil
}
