package chat

import (
	"context"
	"strings"

	"ChatHub/tools/errs"
	"ChatHub/tools/security"
)

// JWTAuthenticator bindUid 的 token 为 HS* 签名的 JWT，用户取 sub
type JWTAuthenticator struct {
	Opts security.Options
}

func NewJWTAuthenticator(opts security.Options) *JWTAuthenticator {
	return &JWTAuthenticator{Opts: opts}
}

func (a *JWTAuthenticator) Resolve(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errs.ErrTokenInvalid.WrapMsg("empty token")
	}
	claims, err := security.Verify(a.Opts, token, "")
	if err != nil {
		return "", errs.ErrTokenInvalid.WrapMsg("verify", "err", err)
	}
	uid := claims.Subject()
	if uid == "" {
		return "", errs.ErrTokenInvalid.WrapMsg("missing sub")
	}
	return uid, nil
}

// PlainAuthenticator token 即用户ID，仅用于内网/调试
type PlainAuthenticator struct{}

func (PlainAuthenticator) Resolve(_ context.Context, token string) (string, error) {
	uid := strings.TrimSpace(token)
	if uid == "" {
		return "", errs.ErrTokenInvalid.WrapMsg("empty token")
	}
	return uid, nil
}
