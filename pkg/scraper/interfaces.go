package scraper

import (
	"context"
	"fmt"

	"xmediagrab/pkg/session"
	"xmediagrab/pkg/session/cdpsession"
	"xmediagrab/pkg/session/rodsession"
)

// Browser engines accepted by DefaultDriverFactory
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// DriverFactory starts a browser session for the named engine
type DriverFactory func(ctx context.Context, engine string, opts session.Options) (session.Driver, error)

// DefaultDriverFactory launches rod or chromedp
func DefaultDriverFactory(ctx context.Context, engine string, opts session.Options) (session.Driver, error) {
	switch engine {
	case EngineRod, "":
		drv, err := rodsession.New(ctx, opts)
		if err != nil {
			return nil, err
		}
		return drv, nil
	case EngineChromedp:
		drv, err := cdpsession.New(ctx, opts)
		if err != nil {
			return nil, err
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}

// StaticDriver returns a factory that hands out drv regardless of engine
func StaticDriver(drv session.Driver) DriverFactory {
	return func(context.Context, string, session.Options) (session.Driver, error) {
		return drv, nil
	}
}
