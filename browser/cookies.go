package browser

import (
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/halvar/credkeeper/store"
)

// toCookieParams converts stored cookies to the CDP format used when seeding
// a fresh browser session.
func toCookieParams(cookies []store.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   normalizeDomain(c.Domain),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: toSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expiresTime := time.Unix(c.Expires, 0)
			// An already-expired cookie would be rejected by the browser.
			if expiresTime.After(time.Now()) {
				ts := cdp.TimeSinceEpoch(expiresTime)
				p.Expires = &ts
			}
		}
		params = append(params, p)
	}
	return params
}

// fromNetworkCookies converts CDP cookies into the persisted envelope format.
func fromNetworkCookies(cookies []*network.Cookie) []store.Cookie {
	out := make([]store.Cookie, 0, len(cookies))
	for _, c := range cookies {
		sc := store.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: fromSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			sc.Expires = int64(c.Expires)
		}
		out = append(out, sc)
	}
	return out
}

// normalizeDomain strips the leading dot; CDP rejects dotted domains on set.
func normalizeDomain(domain string) string {
	if len(domain) > 0 && domain[0] == '.' {
		return domain[1:]
	}
	return domain
}

func toSameSite(s string) network.CookieSameSite {
	switch s {
	case "Strict", "strict":
		return network.CookieSameSiteStrict
	case "Lax", "lax":
		return network.CookieSameSiteLax
	case "None", "none":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}

func fromSameSite(s network.CookieSameSite) string {
	switch s {
	case network.CookieSameSiteStrict:
		return "Strict"
	case network.CookieSameSiteLax:
		return "Lax"
	case network.CookieSameSiteNone:
		return "None"
	default:
		return ""
	}
}
