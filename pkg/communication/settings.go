package communication

import (
	"strings"
	"time"
)

const (
	DefaultRealm     = "default"
	DefaultNamespace = "nl.itslanguage"
	DefaultTimeout   = 30 * time.Second
)

// Settings hold everything needed to reach the backend. The SDK has no
// file or flag surface of its own; callers inject Settings directly.
type Settings struct {
	APIURL             string
	WSURL              string
	AuthorizationToken string
	Realm              string
	Namespace          string
	Timeout            time.Duration
}

// WithDefaults fills empty optional fields and normalizes the URLs.
func (s Settings) WithDefaults() Settings {
	s.APIURL = strings.TrimRight(s.APIURL, "/")
	if s.Realm == "" {
		s.Realm = DefaultRealm
	}
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	s.Namespace = strings.TrimRight(s.Namespace, ".")
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}
