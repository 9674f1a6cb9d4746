// Package moderation screens player input before it reaches the game master.
package moderation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/fablebot/internal/config"
)

// ErrBlocked is wrapped by every rejection
var ErrBlocked = errors.New("input blocked")

// ContentFilter checks content against configured keywords and patterns.
type ContentFilter struct {
	enabled  bool
	keywords []string
	patterns []*regexp.Regexp
}

// New creates a new content filter.
func New(cfg config.ModerationConfig) (*ContentFilter, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	keywords := make([]string, 0, len(cfg.BlockedKeywords))
	for _, kw := range cfg.BlockedKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return &ContentFilter{
		enabled:  cfg.Enabled,
		keywords: keywords,
		patterns: patterns,
	}, nil
}

// Enabled reports whether the filter does anything
func (f *ContentFilter) Enabled() bool {
	return f.enabled && (len(f.keywords) > 0 || len(f.patterns) > 0)
}

// CheckInput returns an error wrapping ErrBlocked if a player message contains blocked content.
func (f *ContentFilter) CheckInput(text string) error {
	if !f.enabled {
		return nil
	}

	normalized := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(normalized, kw) {
			return fmt.Errorf("%w: contains keyword %q", ErrBlocked, kw)
		}
	}
	for i, re := range f.patterns {
		if re.MatchString(text) {
			return fmt.Errorf("%w: matches pattern #%d", ErrBlocked, i+1)
		}
	}
	return nil
}
