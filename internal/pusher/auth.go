package pusher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Auth is the signature sent with a private or presence subscription.
type Auth struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Authorizer signs channel subscriptions for a socket.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (Auth, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, socketID, channel string) (Auth, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, socketID, channel string) (Auth, error) {
	return f(ctx, socketID, channel)
}

// HTTPAuthorizer asks the application's broadcasting auth endpoint, the
// same request Laravel Echo sends to /broadcasting/auth.
type HTTPAuthorizer struct {
	Endpoint string
	Client   *http.Client
	Header   http.Header
}

func (a *HTTPAuthorizer) Authorize(ctx context.Context, socketID, channel string) (Auth, error) {
	form := url.Values{"socket_id": {socketID}, "channel_name": {channel}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Auth{}, err
	}
	for k, vs := range a.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	hc := a.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Auth{}, fmt.Errorf("%w: %s: %w", ErrUnauthorized, channel, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Auth{}, fmt.Errorf("%w: %s: %w", ErrUnauthorized, channel, err)
	}
	if resp.StatusCode/100 != 2 {
		return Auth{}, fmt.Errorf("%w: %s: status %d", ErrUnauthorized, channel, resp.StatusCode)
	}
	var out Auth
	if err := json.Unmarshal(body, &out); err != nil || out.Auth == "" {
		return Auth{}, fmt.Errorf("%w: %s: invalid response", ErrUnauthorized, channel)
	}
	return out, nil
}

// SecretAuthorizer signs subscriptions locally with the app secret. It is
// meant for trusted processes such as workers and tests; browsers and other
// end-user clients go through HTTPAuthorizer.
type SecretAuthorizer struct {
	Key    string
	Secret string
	// PresenceData is sent as channel_data for presence channels, for
	// example {"user_id":"1"}.
	PresenceData string
}

func (a *SecretAuthorizer) Authorize(_ context.Context, socketID, channel string) (Auth, error) {
	if a.Key == "" || a.Secret == "" {
		return Auth{}, fmt.Errorf("%w: %s: missing app key or secret", ErrUnauthorized, channel)
	}
	out := Auth{}
	toSign := socketID + ":" + channel
	if strings.HasPrefix(channel, "presence-") {
		out.ChannelData = a.PresenceData
		if out.ChannelData == "" {
			out.ChannelData = `{"user_id":"` + socketID + `"}`
		}
		toSign += ":" + out.ChannelData
	}
	out.Auth = a.Key + ":" + Sign(a.Secret, toSign)
	return out, nil
}

// Sign returns the hex HMAC-SHA256 of s keyed by secret.
func Sign(secret, s string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}
