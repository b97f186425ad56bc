// Package classify decides, once per request, whether a client gets a fully
// rendered response or a progressively delivered one.
package classify

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/x-way/crawlerdetect"
	"gopkg.in/yaml.v3"
)

// Disposition is the delivery mode chosen for a request.
type Disposition int

const (
	// Incremental is for interactive clients expecting progressive delivery.
	Incremental Disposition = iota
	// Synchronous is for non-interactive agents (crawlers, link unfurlers).
	Synchronous
)

func (d Disposition) String() string {
	if d == Synchronous {
		return "synchronous"
	}
	return "incremental"
}

// Classifier matches a client identity against known non-interactive agent
// signatures. The zero value uses only the built-in crawler database.
type Classifier struct {
	bots        []*regexp.Regexp
	interactive []*regexp.Regexp
	detect      func(string) bool
}

// Patterns is the on-disk format of extra signatures.
//
//	bots:
//	  - "(?i)internal-link-checker"
//	interactive:
//	  - "(?i)bolt-desktop"
type Patterns struct {
	Bots        []string `yaml:"bots"`
	Interactive []string `yaml:"interactive"`
}

// New builds a classifier with the built-in crawler database plus p.
func New(p Patterns) (*Classifier, error) {
	c := &Classifier{detect: crawlerdetect.IsCrawler}
	var err error
	if c.bots, err = compile(p.Bots); err != nil {
		return nil, fmt.Errorf("classify: bot pattern: %w", err)
	}
	if c.interactive, err = compile(p.Interactive); err != nil {
		return nil, fmt.Errorf("classify: interactive pattern: %w", err)
	}
	return c, nil
}

// LoadPatterns reads extra signatures from a YAML file. An empty path yields
// no extra patterns.
func LoadPatterns(path string) (Patterns, error) {
	var p Patterns
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("classify: read patterns: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("classify: parse patterns %s: %w", path, err)
	}
	return p, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify maps a User-Agent value to a disposition. It has no failure mode:
// an empty value is an interactive client.
func (c *Classifier) Classify(userAgent string) Disposition {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return Incremental
	}
	if c == nil {
		if crawlerdetect.IsCrawler(ua) {
			return Synchronous
		}
		return Incremental
	}
	for _, re := range c.interactive {
		if re.MatchString(ua) {
			return Incremental
		}
	}
	for _, re := range c.bots {
		if re.MatchString(ua) {
			return Synchronous
		}
	}
	detect := c.detect
	if detect == nil {
		detect = crawlerdetect.IsCrawler
	}
	if detect(ua) {
		return Synchronous
	}
	return Incremental
}

// ClassifyRequest classifies r by its User-Agent header.
func (c *Classifier) ClassifyRequest(r *http.Request) Disposition {
	return c.Classify(r.Header.Get("User-Agent"))
}
