// Package command recognizes "open/search/play on site X" requests and
// launches the matching page instead of asking the reply backend.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pkg/browser"

	"github.com/teslashibe/go-kai/pkg/diag"
)

// Action is what an entry does with the text.
type Action int

const (
	// Open launches a fixed URL.
	Open Action = iota
	// Query extracts a search term and substitutes it into the URL.
	Query
)

// Entry is one row of the command table.
type Entry struct {
	Site     string   // Human name used in confirmations
	Trigger  string   // Lower-case substring that selects this entry
	Action   Action   // Open or Query
	URL      string   // Target; for Query, contains one %s for the escaped term
	Keywords []string // Phrases stripped from the text to leave the query
	Verb     string   // "searching", "playing" ...
}

// DefaultTable is checked in order; the first match wins. Query entries are
// listed before the generic "search for" so site-specific phrasing wins.
var DefaultTable = []Entry{
	{Site: "YouTube", Trigger: "open youtube", Action: Open, URL: "https://www.youtube.com"},
	{Site: "Google", Trigger: "open google", Action: Open, URL: "https://www.google.com"},
	{Site: "Spotify", Trigger: "open spotify", Action: Open, URL: "https://open.spotify.com"},
	{Site: "Wikipedia", Trigger: "open wikipedia", Action: Open, URL: "https://www.wikipedia.org"},
	{
		Site: "YouTube", Trigger: "on youtube", Action: Query, Verb: "playing",
		URL:      "https://www.youtube.com/results?search_query=%s",
		Keywords: []string{"on youtube", "play", "search for", "search", "find"},
	},
	{
		Site: "Google", Trigger: "on google", Action: Query, Verb: "searching",
		URL:      "https://www.google.com/search?q=%s",
		Keywords: []string{"on google", "search for", "search", "look up", "google"},
	},
	{
		Site: "Wikipedia", Trigger: "on wikipedia", Action: Query, Verb: "looking up",
		URL:      "https://en.wikipedia.org/wiki/Special:Search?search=%s",
		Keywords: []string{"on wikipedia", "search for", "look up", "search"},
	},
	{
		Site: "Google", Trigger: "search for", Action: Query, Verb: "searching",
		URL:      "https://www.google.com/search?q=%s",
		Keywords: []string{"search for"},
	},
}

// Launcher opens a URL on the host.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// BrowserLauncher opens URLs in the desktop browser.
type BrowserLauncher struct{}

// Launch opens url with the system handler.
func (BrowserLauncher) Launch(_ context.Context, u string) error {
	return browser.OpenURL(u)
}

// Match is the outcome of a recognized command.
type Match struct {
	Entry        Entry
	Query        string
	URL          string
	Confirmation string
	Err          error // launch failure; the command still counts as handled
}

// Interceptor checks chat text against the table.
type Interceptor struct {
	table    []Entry
	launcher Launcher
	counters *diag.Counters
	logger   *slog.Logger
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithTable replaces DefaultTable.
func WithTable(t []Entry) Option {
	return func(i *Interceptor) { i.table = t }
}

// WithCounters records launch failures.
func WithCounters(c *diag.Counters) Option {
	return func(i *Interceptor) { i.counters = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = l }
}

// New creates an Interceptor. A nil launcher uses BrowserLauncher.
func New(launcher Launcher, opts ...Option) *Interceptor {
	if launcher == nil {
		launcher = BrowserLauncher{}
	}
	i := &Interceptor{
		table:    DefaultTable,
		launcher: launcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "command")
	return i
}

// Resolve finds the first matching entry without side effects.
// A Query entry whose extracted term is empty does not match; scanning
// continues with the next entry.
func (i *Interceptor) Resolve(text string) (Match, bool) {
	lower := strings.ToLower(text)
	for _, e := range i.table {
		if !strings.Contains(lower, e.Trigger) {
			continue
		}
		switch e.Action {
		case Open:
			return Match{
				Entry:        e,
				URL:          e.URL,
				Confirmation: fmt.Sprintf("Opening %s for you.", e.Site),
			}, true
		case Query:
			q := ExtractQuery(lower, e.Keywords)
			if q == "" {
				continue
			}
			return Match{
				Entry:        e,
				Query:        q,
				URL:          fmt.Sprintf(e.URL, url.QueryEscape(q)),
				Confirmation: fmt.Sprintf("Sure, %s %q on %s.", e.Verb, q, e.Site),
			}, true
		}
	}
	return Match{}, false
}

// Handle resolves text and launches the match. ok is false when no entry
// matched and the text should go to the reply backend.
func (i *Interceptor) Handle(ctx context.Context, text string) (Match, bool) {
	if i == nil {
		return Match{}, false
	}
	m, ok := i.Resolve(text)
	if !ok {
		return m, false
	}

	if err := i.launcher.Launch(ctx, m.URL); err != nil {
		i.counters.Error(diag.KindLaunch, "launch")
		i.logger.Warn("launch failed", "site", m.Entry.Site, "url", m.URL, "error", err)
		m.Err = err
		m.Confirmation = fmt.Sprintf("Sorry, I couldn't open %s right now.", m.Entry.Site)
		return m, true
	}

	i.logger.Info("command handled", "site", m.Entry.Site, "query", m.Query)
	return m, true
}

// ExtractQuery removes every keyword from text and collapses whitespace.
// Longer keywords should precede their substrings.
func ExtractQuery(text string, keywords []string) string {
	for _, k := range keywords {
		text = strings.ReplaceAll(text, k, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
