package auth

import (
	"context"
	"io"

	"github.com/johnsto/go-passwordless"
)

func (a *Auth) transport() string {
	if a.Environment == EnvProduction {
		return transportEmail
	}
	return transportLog
}

// Request sends a login token to the given recipient. The token is stored in
// Redis and stays valid for the transport's validity window.
func (a *Auth) Request(ctx context.Context, uid, recipient string) error {
	return a.pw.RequestToken(ctx, a.transport(), uid, recipient)
}

// Verify checks the login token against the one stored for the user. Token
// mismatch or expiry reports invalid without error; only infrastructure
// problems surface as errors.
func (a *Auth) Verify(ctx context.Context, uid, token string) (bool, error) {
	valid, err := a.pw.VerifyToken(ctx, uid, token)
	switch err {
	case passwordless.ErrNoResponseWriter, passwordless.ErrNoStore, passwordless.ErrNoTransport, passwordless.ErrNotValidForContext:
		return valid, err
	default:
		return valid, nil
	}
}

func loginEmailComposer(option EmailOption) passwordless.ComposerFunc {
	return func(ctx context.Context, token, uid, recipient string, w io.Writer) error {
		e := &passwordless.Email{
			Subject: "Sign in to " + option.Name,
			To:      recipient,
		}

		link := option.LinkGenerator(uid, token)

		text := "Someone asked to sign in to " + option.Name +
			" with this email address.\n\n" +
			"Your token (valid for 15 minutes) is " + token +
			", or open the following link to sign in directly: " + link + "\n\n" +
			"If this was not you, no action is needed; the token expires on its own."
		html := "<!doctype html><html><body>" +
			"<p>Someone asked to sign in to " + option.Name +
			" with this email address.</p>" +
			"<p>Your token (valid for 15 minutes) is <b>" + token +
			"</b>, or <a href=\"" + link + "\">sign in directly</a>.</p>" +
			"<p>If this was not you, no action is needed; the token expires on its own.</p>" +
			"</body></html>"

		e.AddBody("text/plain", text)
		e.AddBody("text/html", html)

		_, err := e.Write(w)

		return err
	}
}
