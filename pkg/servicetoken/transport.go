package servicetoken

import (
	"io"
	"net/http"
)

// Transport authenticates every outgoing request with a service token for
// Audience. A 401 from the callee invalidates the cached token and the
// request is retried once when its body can be replayed.
type Transport struct {
	Base     http.RoundTripper
	Cache    *Cache
	Audience string
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req, req.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body := req.Body
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return resp, nil
		}
		if body, err = req.GetBody(); err != nil {
			return resp, nil
		}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	t.Cache.Invalidate(t.Audience)
	return t.send(req, body)
}

func (t *Transport) send(req *http.Request, body io.ReadCloser) (*http.Response, error) {
	tok, err := t.Cache.Token(req.Context(), t.Audience)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, err
	}
	out := req.Clone(req.Context())
	out.Body = body
	out.Header.Set("Authorization", "Bearer "+tok)
	return t.base().RoundTrip(out)
}
