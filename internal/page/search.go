package page

import (
	"context"
	"fmt"
	"strings"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/interact"
)

// SearchPage is a page with a search box and a results container.
type SearchPage struct {
	*Page
	URL     string
	Box     interact.SearchBox
	Results browser.Locator
}

var _ Searchable = (*SearchPage)(nil)

// NewSearchPage returns a search page using the classic search engine
// layout: an input named q inside a form, results under #search.
func NewSearchPage(s browser.Session, in *interact.Interactor, url string) *SearchPage {
	return &SearchPage{
		Page: New(s, in),
		URL:  url,
		Box: interact.SearchBox{
			Box: browser.Name("q"),
			Alt: browser.XPath("//input[@name='q']"),
		},
		Results: browser.ID("search"),
	}
}

// GoToHomepage opens the page's own URL.
func (p *SearchPage) GoToHomepage(ctx context.Context) error {
	return p.Open(ctx, p.URL)
}

func (p *SearchPage) Search(ctx context.Context, term string) error {
	return p.Interact.Search(ctx, p.Session, p.Box, term)
}

// ResultsContain reports whether the results container mentions text.
// If the container cannot be read it falls back to the page source.
func (p *SearchPage) ResultsContain(ctx context.Context, text string) (bool, error) {
	return interact.Fallback(ctx, nil, fmt.Sprintf("verify results contain %q", text),
		interact.Strategy[bool]{
			Name: "results",
			Run: func(ctx context.Context) interact.Result[bool] {
				got, err := p.Interact.GetText(ctx, p.Session, p.Results)
				if err != nil {
					return interact.Failed[bool](err)
				}
				return interact.Ok(strings.Contains(got, text))
			},
		},
		interact.Strategy[bool]{
			Name: "source",
			Run: func(ctx context.Context) interact.Result[bool] {
				ok, err := p.Interact.PageSourceContains(ctx, p.Session, text)
				if err != nil {
					return interact.Failed[bool](err)
				}
				return interact.Ok(ok)
			},
		},
	)
}
