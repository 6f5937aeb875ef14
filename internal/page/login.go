package page

import (
	"context"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/interact"
)

// LoginPage is a username and password form.
type LoginPage struct {
	*Page
	Username browser.Locator
	Password browser.Locator
	Submit   browser.Locator
}

// NewLoginPage returns a login page with the usual element ids.
func NewLoginPage(s browser.Session, in *interact.Interactor) *LoginPage {
	return &LoginPage{
		Page:     New(s, in),
		Username: browser.ID("username"),
		Password: browser.ID("password"),
		Submit:   browser.ID("login"),
	}
}

func (p *LoginPage) EnterUsername(ctx context.Context, user string) error {
	return p.Interact.Type(ctx, p.Session, p.Username, user)
}

func (p *LoginPage) EnterPassword(ctx context.Context, pass string) error {
	return p.Interact.Type(ctx, p.Session, p.Password, pass)
}

// ClickLogin submits the form and waits for the next page to load.
func (p *LoginPage) ClickLogin(ctx context.Context) error {
	if err := p.Interact.Click(ctx, p.Session, p.Submit); err != nil {
		return err
	}
	return p.Interact.WaitForLoad(ctx, p.Session)
}

// Login fills in both fields and submits.
func (p *LoginPage) Login(ctx context.Context, user, pass string) error {
	if err := p.EnterUsername(ctx, user); err != nil {
		return err
	}
	if err := p.EnterPassword(ctx, pass); err != nil {
		return err
	}
	return p.ClickLogin(ctx)
}

// IsDisplayed reports whether all three form elements are shown.
func (p *LoginPage) IsDisplayed(ctx context.Context) bool {
	return p.Interact.IsDisplayed(ctx, p.Session, p.Username) &&
		p.Interact.IsDisplayed(ctx, p.Session, p.Password) &&
		p.Interact.IsDisplayed(ctx, p.Session, p.Submit)
}
