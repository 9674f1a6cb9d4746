package logger

import (
	"io"
	"regexp"
	"sort"
)

const redacted = "[REDACTED]"

// rule replaces matches of re with replacement, which may use $1-style groups
type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor masks credentials before log lines reach a writer
type Redactor struct {
	rules []rule
}

// defaultRules cover the credentials the bot handles: the Telegram token,
// backend API keys and proxy credentials in a configured base URL.
func defaultRules() []rule {
	return []rule{
		// Telegram file and API URLs carry the token in the path
		{regexp.MustCompile(`(api\.telegram\.org/(?:file/)?bot)[^/\s"]+`), "${1}" + redacted},
		{regexp.MustCompile(`\d{8,10}:[a-zA-Z0-9_-]{30,}`), redacted},

		// OpenAI and Anthropic keys
		{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redacted},
		{regexp.MustCompile(`(Bearer\s+)[a-zA-Z0-9._-]+`), "${1}" + redacted},
		{regexp.MustCompile(`(x-api-key["\s:=]+)[^\s"]+`), "${1}" + redacted},

		// user:password@ in a proxy base URL
		{regexp.MustCompile(`(://)[^/\s:@]+:[^/\s@]+@`), "${1}" + redacted + "@"},

		{regexp.MustCompile(`((?:api_key|bot_token|password|secret)["\s:=]+)[^\s",]+`), "${1}" + redacted},
	}
}

// NewRedactor creates a redactor with the default rules.
// Each secret is also masked verbatim wherever it appears.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}

	// Longest first, so a secret containing another is masked whole
	sorted := append([]string(nil), secrets...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, secret := range sorted {
		if len(secret) < 6 {
			continue
		}
		r.rules = append(r.rules, rule{regexp.MustCompile(regexp.QuoteMeta(secret)), redacted})
	}

	r.rules = append(r.rules, defaultRules()...)
	return r
}

// AddPattern masks every match of pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re, redacted})
	return nil
}

// Redact masks credentials in s
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.replacement)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success since io.MultiWriter rejects short counts
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
