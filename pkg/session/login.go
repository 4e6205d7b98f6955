package session

import (
	"context"
	"fmt"

	errs "xmediagrab/pkg/errors"
	"xmediagrab/pkg/logger"
	"xmediagrab/pkg/xsite"
)

// LoginParams identifies the account session and the profile to open
type LoginParams struct {
	BaseURL   string
	AuthToken string
	UserID    string
}

// Login opens the site root, injects the auth_token cookie and navigates to
// the user's media timeline. Every failure is a setup error.
func Login(ctx context.Context, drv Driver, p LoginParams, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if p.AuthToken == "" {
		return errs.Setup("auth token is empty", nil)
	}
	if p.UserID == "" {
		return errs.Setup("target user id is empty", nil)
	}

	base := p.BaseURL
	if base == "" {
		base = xsite.BaseURL
	}

	log.WithField("url", base).Debug("Opening site root")
	if err := drv.Navigate(ctx, base); err != nil {
		return errs.Setup(fmt.Sprintf("failed to open %s", base), err)
	}

	cookie := Cookie{
		Name:     xsite.AuthCookie,
		Value:    p.AuthToken,
		Domain:   xsite.CookieDomain(base),
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
	}
	if err := drv.InjectCookie(ctx, cookie); err != nil {
		return errs.Setup("auth cookie was rejected", err)
	}
	log.WithField("domain", cookie.Domain).Debug("Injected auth cookie")

	target := xsite.MediaURL(base, p.UserID)
	if err := drv.Navigate(ctx, target); err != nil {
		return errs.Setup(fmt.Sprintf("failed to open %s", target), err)
	}
	log.WithField("url", target).Info("Opened media timeline")

	return nil
}
