package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/halvar/credkeeper/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCookieParams(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).Unix()
	cookies := []store.Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Expires: future, Secure: true, HTTPOnly: true, SameSite: "Lax"},
		{Name: "session", Value: "xyz", Domain: "app.example.com", Path: "/"},
	}

	params := toCookieParams(cookies)
	require.Len(t, params, 2)

	assert.Equal(t, "example.com", params[0].Domain, "leading dot must be stripped")
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)

	assert.Nil(t, params[1].Expires, "session cookie has no expiry")
	assert.Equal(t, network.CookieSameSite(""), params[1].SameSite)
}

func TestToCookieParams_DropsPastExpiry(t *testing.T) {
	cookies := []store.Cookie{
		{Name: "old", Value: "v", Domain: "example.com", Expires: time.Now().Add(-time.Hour).Unix()},
	}

	params := toCookieParams(cookies)
	require.Len(t, params, 1)
	assert.Nil(t, params[0].Expires, "an expiry in the past would make the browser reject the cookie")
}

func TestFromNetworkCookies(t *testing.T) {
	netCookies := []*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Expires: 1767225600.25, Secure: true, HTTPOnly: true, SameSite: network.CookieSameSiteStrict},
		{Name: "session", Value: "xyz", Domain: "app.example.com", Path: "/", Expires: -1},
	}

	out := fromNetworkCookies(netCookies)
	require.Len(t, out, 2)

	assert.Equal(t, int64(1767225600), out[0].Expires)
	assert.Equal(t, "Strict", out[0].SameSite)
	assert.Zero(t, out[1].Expires, "negative CDP expiry means session cookie")
}

func TestSameSiteRoundtrip(t *testing.T) {
	for _, v := range []string{"Strict", "Lax", "None"} {
		assert.Equal(t, v, fromSameSite(toSameSite(v)))
	}
	assert.Equal(t, "", fromSameSite(toSameSite("")))
}
