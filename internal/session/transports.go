package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ioanhodean/webharness/internal/browser"
	"github.com/ioanhodean/webharness/internal/chrome"
	"github.com/ioanhodean/webharness/internal/config"
	"github.com/ioanhodean/webharness/internal/managed"
	"github.com/ioanhodean/webharness/internal/webdriver"
)

// DefaultStrategies wires the built-in transports: a local Chrome over CDP
// or a local geckodriver for direct construction, playwright for managed
// acquisition of either browser.
func DefaultStrategies(logger logrus.FieldLogger) map[config.BrowserKind]Strategies {
	logger = orDiscard(logger)

	acquire := ConstructorFunc(func(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
		s, err := managed.Acquire(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	return map[config.BrowserKind]Strategies{
		config.Chrome: {
			Direct: ConstructorFunc(func(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
				s, err := chrome.Launch(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				return s, nil
			}),
			Managed: acquire,
		},
		config.Firefox: {
			Direct: ConstructorFunc(func(ctx context.Context, cfg config.SessionConfig) (browser.Session, error) {
				s, err := webdriver.Launch(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				return s, nil
			}),
			Managed: acquire,
		},
	}
}
