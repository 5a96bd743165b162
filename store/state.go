package store

import (
	"encoding/json"
	"time"
)

// Cookie is one browser cookie in the persisted envelope.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"` // epoch seconds, 0 for session cookies
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite"`
}

// cookieAlias avoids UnmarshalJSON recursion.
type cookieAlias Cookie

// UnmarshalJSON accepts both the "expires" and the older "expirationDate"
// field spellings. Envelopes written by earlier versions of the tool used
// "expirationDate"; both must keep loading.
func (c *Cookie) UnmarshalJSON(data []byte) error {
	var raw struct {
		cookieAlias
		ExpirationDate *float64 `json:"expirationDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Cookie(raw.cookieAlias)
	if c.Expires == 0 && raw.ExpirationDate != nil {
		c.Expires = int64(*raw.ExpirationDate)
	}
	return nil
}

// KV is a single browser storage entry.
type KV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OriginState holds the persisted local storage of one origin.
type OriginState struct {
	Origin       string `json:"origin"`
	LocalStorage []KV   `json:"localStorage"`
}

// StorageSnapshot is the full browser storage capture: cookies plus
// per-origin local storage. Some services only expose their bearer token via
// local storage, so the cookie list alone is not always enough to recover a
// session.
type StorageSnapshot struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// LocalStorageValue returns the value stored under name for any origin in
// the snapshot, or "" when absent.
func (s *StorageSnapshot) LocalStorageValue(name string) string {
	if s == nil {
		return ""
	}
	for _, o := range s.Origins {
		for _, kv := range o.LocalStorage {
			if kv.Name == name {
				return kv.Value
			}
		}
	}
	return ""
}

// AuthState is the credential envelope for one (service, account) pair.
// A state without a LastRefreshedAt timestamp is treated as absent.
type AuthState struct {
	Cookies         []Cookie
	Snapshot        *StorageSnapshot
	LastRefreshedAt time.Time
}

// meta is the sidecar file carrying the refresh timestamp.
type meta struct {
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}
