package sources

import (
	"github.com/SuperReturn/Oracle/pkg/logging"
)

// BaseFeed provides the identity fields shared by all feeds
type BaseFeed struct {
	name       string
	sourcetype SourceType
	logger     *logging.Logger
}

// NewBaseFeed creates a new base feed
func NewBaseFeed(name string, sourcetype SourceType, logger *logging.Logger) *BaseFeed {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &BaseFeed{
		name:       name,
		sourcetype: sourcetype,
		logger:     logger.With("source", name, "type", string(sourcetype)),
	}
}

// Name returns the feed name
func (b *BaseFeed) Name() string {
	return b.name
}

// Type returns the feed type
func (b *BaseFeed) Type() SourceType {
	return b.sourcetype
}

// Logger returns the logger
func (b *BaseFeed) Logger() *logging.Logger {
	return b.logger
}
