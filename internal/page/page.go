// Package page holds page objects: named locators and flows for specific
// sites, built on the interaction layer. A page object must not outlive
// the session it was built for.
package page

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/interact"
)

// ErrNotSearchable is returned when a search is requested on a page that
// has no search box.
var ErrNotSearchable = errors.New("page does not support search")

// Page is the behaviour every page object shares.
type Page struct {
	Session  browser.Session
	Interact *interact.Interactor
}

// New returns a page acting on s.
func New(s browser.Session, in *interact.Interactor) *Page {
	return &Page{Session: s, Interact: in}
}

// Open navigates to url and waits for it to load.
func (p *Page) Open(ctx context.Context, url string) error {
	return p.Interact.Navigate(ctx, p.Session, url)
}

func (p *Page) Title(ctx context.Context) (string, error) {
	return p.Interact.Title(ctx, p.Session)
}

// TitleContains reports whether the current title contains text.
func (p *Page) TitleContains(ctx context.Context, text string) (bool, error) {
	title, err := p.Title(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(title, text), nil
}

// Navigable is implemented by every page object.
type Navigable interface {
	Open(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	TitleContains(ctx context.Context, text string) (bool, error)
}

// searchHosts are hosts served by SearchPage.
var searchHosts = []string{"google.", "duckduckgo.com", "bing.com"}

// Resolve returns the page object for rawURL: a SearchPage on a known
// search engine, otherwise a plain Page.
func Resolve(s browser.Session, in *interact.Interactor, rawURL string) Navigable {
	u, err := url.Parse(rawURL)
	if err == nil {
		host := strings.ToLower(u.Hostname())
		for _, h := range searchHosts {
			if strings.Contains(host, h) {
				return NewSearchPage(s, in, rawURL)
			}
		}
	}
	return New(s, in)
}

// Searchable is implemented by pages that can run a search and check
// its results.
type Searchable interface {
	Search(ctx context.Context, term string) error
	ResultsContain(ctx context.Context, text string) (bool, error)
}

// Search runs term on p if it is Searchable.
func Search(ctx context.Context, p Navigable, term string) error {
	sp, ok := p.(Searchable)
	if !ok {
		return ErrNotSearchable
	}
	return sp.Search(ctx, term)
}

// ResultsContain checks the results on p if it is Searchable.
func ResultsContain(ctx context.Context, p Navigable, text string) (bool, error) {
	sp, ok := p.(Searchable)
	if !ok {
		return false, ErrNotSearchable
	}
	return sp.ResultsContain(ctx, text)
}
