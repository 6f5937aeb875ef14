package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy names how a Locator finds elements.
type Strategy string

const (
	ByID       Strategy = "id"
	ByName     Strategy = "name"
	ByCSS      Strategy = "css"
	ByXPath    Strategy = "xpath"
	ByTag      Strategy = "tag"
	ByClass    Strategy = "class"
	ByLinkText Strategy = "link"
)

// Locator describes how to find zero or more elements. It is comparable
// and renders as "strategy=value".
type Locator struct {
	By    Strategy `json:"by"`
	Value string   `json:"value"`
}

func ID(v string) Locator       { return Locator{By: ByID, Value: v} }
func Name(v string) Locator     { return Locator{By: ByName, Value: v} }
func CSS(v string) Locator      { return Locator{By: ByCSS, Value: v} }
func XPath(v string) Locator    { return Locator{By: ByXPath, Value: v} }
func Tag(v string) Locator      { return Locator{By: ByTag, Value: v} }
func Class(v string) Locator    { return Locator{By: ByClass, Value: v} }
func LinkText(v string) Locator { return Locator{By: ByLinkText, Value: v} }

func (l Locator) String() string {
	return string(l.By) + "=" + l.Value
}

// MarshalText lets locators appear in structured logs and JSON output.
func (l Locator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLocator parses "strategy=value". A value with no recognised
// strategy prefix is treated as a CSS selector.
func ParseLocator(s string) (Locator, error) {
	if s == "" {
		return Locator{}, fmt.Errorf("%w: empty locator", ErrUnsupportedLocator)
	}
	if by, value, ok := strings.Cut(s, "="); ok {
		switch Strategy(by) {
		case ByID, ByName, ByCSS, ByXPath, ByTag, ByClass, ByLinkText:
			if value == "" {
				return Locator{}, fmt.Errorf("%w: %q has no value", ErrUnsupportedLocator, s)
			}
			return Locator{By: Strategy(by), Value: value}, nil
		}
	}
	return CSS(s), nil
}

// CSSSelector returns an equivalent CSS selector. XPath and link text
// have none.
func (l Locator) CSSSelector() (string, bool) {
	switch l.By {
	case ByCSS:
		return l.Value, true
	case ByID:
		return "[id=" + strconv.Quote(l.Value) + "]", true
	case ByName:
		return "[name=" + strconv.Quote(l.Value) + "]", true
	case ByTag:
		return l.Value, true
	case ByClass:
		return "." + cssIdent(l.Value), true
	}
	return "", false
}

// cssIdent escapes characters that would end a class selector early.
func cssIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f:
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
