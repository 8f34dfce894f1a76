package protocol

import (
	"net/url"
	"strings"
)

// SchemeFor returns the websocket scheme matching the origin the workspace
// is served from: "wss" for an https origin, "ws" otherwise.
func SchemeFor(origin string) string {
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Scheme, "https") {
		return "wss"
	}
	return "ws"
}

func scheme(secure bool) string {
	if secure {
		return "wss"
	}
	return "ws"
}

// SessionEndpoint returns the session channel URL:
// ws[s]://host/ws/{sessionID}/session.
func SessionEndpoint(host, sessionID string, secure bool) string {
	u := url.URL{
		Scheme:  scheme(secure),
		Host:    strings.TrimSuffix(host, "/"),
		Path:    "/ws/" + sessionID + "/session",
		RawPath: "/ws/" + url.PathEscape(sessionID) + "/session",
	}
	return u.String()
}

// TraceEndpoint returns the cross-session trace event channel URL:
// ws[s]://host/ws/trace.
func TraceEndpoint(host string, secure bool) string {
	u := url.URL{
		Scheme: scheme(secure),
		Host:   strings.TrimSuffix(host, "/"),
		Path:   "/ws/trace",
	}
	return u.String()
}
