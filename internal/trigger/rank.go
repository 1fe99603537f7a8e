package trigger

import (
	"slices"
	"strings"

	"adminexport/internal/config"
)

// Descriptor describes one clickable control found on the page
type Descriptor struct {
	Index   int    `json:"index"`
	Tag     string `json:"tag"`
	ID      string `json:"id"`
	Classes string `json:"classes"`
	Handler string `json:"handler"`
	Href    string `json:"href"`
	Text    string `json:"text"`
	Attrs   string `json:"attrs"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Source  string `json:"source"`
}

// Signal is the strongest hint that a control starts the export
type Signal int

const (
	SignalNone Signal = iota
	SignalText
	SignalClass
	SignalHandler
	SignalKnownID
)

func (s Signal) String() string {
	switch s {
	case SignalKnownID:
		return "known_id"
	case SignalHandler:
		return "handler"
	case SignalClass:
		return "class"
	case SignalText:
		return "text"
	default:
		return "none"
	}
}

// Criteria are the hints Rank looks for
type Criteria struct {
	ButtonIDs     []string
	HandlerNames  []string
	ClassKeywords []string
	TextKeywords  []string
}

// CriteriaFrom copies the hints out of the export settings
func CriteriaFrom(cfg config.ExportConfig) Criteria {
	return Criteria{
		ButtonIDs:     cfg.ButtonIDs,
		HandlerNames:  cfg.HandlerNames,
		ClassKeywords: cfg.ClassKeywords,
		TextKeywords:  cfg.TextKeywords,
	}
}

// Ranked is a descriptor with the signal it matched
type Ranked struct {
	Descriptor
	Signal Signal
}

// Rank orders the usable controls by signal strength, then document order.
// Invisible, disabled and signal-less controls are dropped.
func Rank(descs []Descriptor, c Criteria) []Ranked {
	out := make([]Ranked, 0, len(descs))
	for _, d := range descs {
		if !d.Visible || !d.Enabled {
			continue
		}
		if s := c.signal(d); s != SignalNone {
			out = append(out, Ranked{Descriptor: d, Signal: s})
		}
	}

	slices.SortStableFunc(out, func(a, b Ranked) int {
		if a.Signal != b.Signal {
			return int(b.Signal) - int(a.Signal)
		}
		return a.Index - b.Index
	})
	return out
}

func (c Criteria) signal(d Descriptor) Signal {
	if d.ID != "" && slices.Contains(c.ButtonIDs, d.ID) {
		return SignalKnownID
	}

	script := d.Handler
	if href := strings.TrimSpace(d.Href); strings.HasPrefix(strings.ToLower(href), "javascript:") {
		script += " " + href
	}
	for _, name := range c.HandlerNames {
		if name != "" && strings.Contains(script, name) {
			return SignalHandler
		}
	}

	attrs := strings.ToLower(d.ID + " " + d.Classes + " " + d.Attrs)
	if containsAny(attrs, c.ClassKeywords) {
		return SignalClass
	}

	if containsAny(strings.ToLower(d.Text), c.TextKeywords) {
		return SignalText
	}
	return SignalNone
}

func containsAny(haystack string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(haystack, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
