package session

import (
	"io"
	"net/http"
)

type transport struct {
	agent *Agent
	base  http.RoundTripper
}

// Transport wraps base so requests carry the access token and a 401 triggers
// one shared refresh followed by a single retry.
func (a *Agent) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{agent: a, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	creds := t.agent.Credentials()

	resp, err := t.base.RoundTrip(withBearer(req, creds.AccessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if creds.RefreshToken == "" {
		return resp, nil
	}
	// a consumed body cannot be replayed
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	access, rerr := t.agent.refresh(req.Context(), creds.AccessToken)
	if rerr != nil {
		return resp, nil
	}

	retry := withBearer(req, access)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// the retry's outcome is final: no second refresh
	return t.base.RoundTrip(retry)
}

func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}
