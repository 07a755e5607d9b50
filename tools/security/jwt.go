package security

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"ChatHub/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 2 * time.Hour

// Options 签名参数；网关只校验，签发给测试和运维脚本用
type Options struct {
	Secret []byte        // HMAC 密钥
	Alg    string        // HS256/HS384/HS512，空为 HS256
	TTL    time.Duration // 有效期，<=0 取 2h
	Issuer string        // 非空时签发写入 iss，校验要求一致
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: defaultTTL}
}

// JWTClaims bindUid / 运维接口使用的令牌声明
type JWTClaims struct {
	Scopes []string `json:"scope,omitempty"`
	jwtlib.RegisteredClaims
}

// Subject 用户ID；缺失时为空串
func (c *JWTClaims) Subject() string {
	if c == nil {
		return ""
	}
	return c.RegisteredClaims.Subject
}

func (c *JWTClaims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func Generate(opts Options, userID string, scopes []string) (token string, accessTokenHash string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", "", time.Time{}, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	expireAt = now.Add(ttl)

	claims := &JWTClaims{
		Scopes: scopes,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    opts.Issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expireAt),
		},
	}
	token, err = jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", "", time.Time{}, errs.Wrap(err)
	}
	return token, HashToken(token), expireAt, nil
}

// Verify 校验签名、有效期和 alg；expectedHash 非空时还要求令牌哈希一致
func Verify(opts Options, token string, expectedHash string) (*JWTClaims, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	parserOpts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{method.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwtlib.WithIssuer(opts.Issuer))
	}

	claims := &JWTClaims{}
	_, err = jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return opts.Secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	if expectedHash != "" && HashToken(token) != expectedHash {
		return nil, errs.ErrTokenInvalid.WrapMsg("access token hash mismatch")
	}
	return claims, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unsupported alg, use HS256/HS384/HS512", "alg", alg)
	}
}
