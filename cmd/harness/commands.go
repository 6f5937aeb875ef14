package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/diagnostics"
	"github.com/ioanhodean/webharness/internal/harness"
	"github.com/ioanhodean/webharness/internal/page"
	"github.com/ioanhodean/webharness/internal/wait"
)

func newOpenCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Open a page and print its title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error) {
				p := page.Resolve(s, h.Interact, args[0])
				if err := p.Open(ctx, args[0]); err != nil {
					return nil, err
				}
				title, err := p.Title(ctx)
				if err != nil {
					return nil, err
				}
				return OpenResult{URL: args[0], Title: title, Browser: s.Kind()}, nil
			})
		},
	}
}

func newTitleCmd(cfg *Config) *cobra.Command {
	var contains string
	cmd := &cobra.Command{
		Use:   "title <url>",
		Short: "Print the title of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error) {
				if err := h.Interact.Navigate(ctx, s, args[0]); err != nil {
					return nil, err
				}
				if contains != "" {
					title, err := wait.For(ctx, h.Engine, s, wait.TitleContains(contains))
					return TitleResult{Title: title}, err
				}
				title, err := h.Interact.Title(ctx, s)
				return TitleResult{Title: title}, err
			})
		},
	}
	cmd.Flags().StringVar(&contains, "contains", "", "Wait until the title contains this text")
	return cmd
}

func newSearchCmd(cfg *Config) *cobra.Command {
	var box, alt, expect string
	cmd := &cobra.Command{
		Use:   "search <url> <term>",
		Short: "Run a search on a page and optionally check the results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			boxLoc, err := browser.ParseLocator(box)
			if err != nil {
				return fmt.Errorf("--box: %w", err)
			}
			altLoc, err := browser.ParseLocator(alt)
			if err != nil {
				return fmt.Errorf("--alt-box: %w", err)
			}
			return withSession(cmd, cfg, func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error) {
				p := page.NewSearchPage(s, h.Interact, args[0])
				p.Box.Box, p.Box.Alt = boxLoc, altLoc
				if err := p.GoToHomepage(ctx); err != nil {
					return nil, err
				}
				if err := page.Search(ctx, p, args[1]); err != nil {
					return nil, err
				}
				title, err := p.Title(ctx)
				if err != nil {
					return nil, err
				}
				res := SearchResult{Term: args[1], Title: title}
				if expect == "" {
					return res, nil
				}
				found, err := page.ResultsContain(ctx, p, expect)
				if err != nil {
					return nil, err
				}
				if !found {
					return nil, fmt.Errorf("search results do not contain %q", expect)
				}
				res.Expect, res.Found = expect, &found
				return res, nil
			})
		},
	}
	cmd.Flags().StringVar(&box, "box", "name=q", "Locator of the search box")
	cmd.Flags().StringVar(&alt, "alt-box", "xpath=//input[@name='q']", "Locator used by the scripted fallback")
	cmd.Flags().StringVar(&expect, "expect", "", "Text the results must contain")
	return cmd
}

func newLoginCmd(cfg *Config) *cobra.Command {
	var user, pass string
	cmd := &cobra.Command{
		Use:   "login <url>",
		Short: "Fill in and submit a username and password form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error) {
				p := page.NewLoginPage(s, h.Interact)
				if err := p.Open(ctx, args[0]); err != nil {
					return nil, err
				}
				if !p.IsDisplayed(ctx) {
					return nil, fmt.Errorf("no login form at %s", args[0])
				}
				if err := p.Login(ctx, user, pass); err != nil {
					return nil, err
				}
				title, err := p.Title(ctx)
				return LoginResult{User: user, Title: title}, err
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Username")
	cmd.Flags().StringVar(&pass, "pass", "", "Password")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newScreenshotCmd(cfg *Config) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "screenshot <url>",
		Short: "Save a PNG screenshot of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, h *harness.Harness, s browser.Session) (any, error) {
				if err := h.Interact.Navigate(ctx, s, args[0]); err != nil {
					return nil, err
				}
				name := args[0]
				if u, err := url.Parse(args[0]); err == nil && u.Hostname() != "" {
					name = u.Hostname()
				}
				obs := diagnostics.NewObserver(h.Observer.Fs, dir, h.Registry, h.Observer.Logger)
				path, err := obs.Capture(ctx, "screenshot", name)
				if err != nil {
					return nil, err
				}
				info, err := obs.Fs.Stat(path)
				if err != nil {
					return nil, err
				}
				return ScreenshotResult{Path: path, Size: int(info.Size())}, nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the screenshot to")
	return cmd
}

func newConfigCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved session configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := configure(cmd, cfg)
			if err != nil {
				return err
			}
			return outputResult(cfg, ConfigResult{SessionConfig: h.Config, LaunchArgs: h.Config.LaunchArgs()})
		},
	}
}
