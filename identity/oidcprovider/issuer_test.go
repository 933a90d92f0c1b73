package oidcprovider_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testClientID = "auth-shell"

// clock is shared by the fake issuer and the provider under test
type clock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

type issuerUser struct {
	sub      string
	password string
	verified bool
}

type issuedCode struct {
	challenge string
	nonce     string
	email     string
}

// fakeIssuer is a minimal OpenID Connect issuer: discovery, JWKS, token,
// revocation and a JSON registration endpoint.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	clock  *clock

	mu            sync.Mutex
	users         map[string]*issuerUser
	codes         map[string]issuedCode
	refreshTokens map[string]string
	revoked       []string
	omitIDToken   bool
	autoVerify    bool
	expiresIn     int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &fakeIssuer{
		t:             t,
		key:           key,
		clock:         &clock{},
		users:         make(map[string]*issuerUser),
		codes:         make(map[string]issuedCode),
		refreshTokens: make(map[string]string),
		expiresIn:     3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", iss.discovery)
	mux.HandleFunc("GET /jwks", iss.jwks)
	mux.HandleFunc("POST /token", iss.token)
	mux.HandleFunc("POST /revoke", iss.revoke)
	mux.HandleFunc("POST /register", iss.register)
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)
	return iss
}

func (iss *fakeIssuer) URL() string {
	return iss.server.URL
}

func (iss *fakeIssuer) addUser(email, password string, verified bool) string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	sub := uuid.New().String()
	iss.users[email] = &issuerUser{sub: sub, password: password, verified: verified}
	return sub
}

// configure changes issuer behaviour under its lock
func (iss *fakeIssuer) configure(fn func(iss *fakeIssuer)) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	fn(iss)
}

func (iss *fakeIssuer) verify(email string) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.users[email].verified = true
}

// authorize simulates the user completing the login at the issuer for an
// authorization URL and returns the code the issuer would redirect with.
func (iss *fakeIssuer) authorize(authURL, email, nonceOverride string) string {
	u, err := url.Parse(authURL)
	require.NoError(iss.t, err)
	q := u.Query()
	require.Equal(iss.t, "S256", q.Get("code_challenge_method"))

	nonce := q.Get("nonce")
	if nonceOverride != "" {
		nonce = nonceOverride
	}

	iss.mu.Lock()
	defer iss.mu.Unlock()
	if _, ok := iss.users[email]; !ok {
		iss.users[email] = &issuerUser{sub: uuid.New().String(), verified: true}
	}
	code := uuid.New().String()
	iss.codes[code] = issuedCode{challenge: q.Get("code_challenge"), nonce: nonce, email: email}
	return code
}

func (iss *fakeIssuer) revokeAllRefreshTokens() {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.refreshTokens = make(map[string]string)
}

func (iss *fakeIssuer) revokedTokens() []string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return append([]string(nil), iss.revoked...)
}

func (iss *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss.URL(),
		"authorization_endpoint":                iss.URL() + "/authorize",
		"token_endpoint":                        iss.URL() + "/token",
		"jwks_uri":                              iss.URL() + "/jwks",
		"revocation_endpoint":                   iss.URL() + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (iss *fakeIssuer) jwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(iss.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(iss.key.E)).Bytes()),
		}},
	})
}

func (iss *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenErr(w, "invalid_request", err.Error())
		return
	}

	iss.mu.Lock()
	defer iss.mu.Unlock()

	var email, nonce string
	switch r.PostForm.Get("grant_type") {
	case "password":
		u, ok := iss.users[r.PostForm.Get("username")]
		if !ok || u.password != r.PostForm.Get("password") {
			tokenErr(w, "invalid_grant", "Invalid user credentials")
			return
		}
		if !u.verified {
			tokenErr(w, "invalid_grant", "Account is not fully set up")
			return
		}
		email = r.PostForm.Get("username")
	case "authorization_code":
		c, ok := iss.codes[r.PostForm.Get("code")]
		if !ok {
			tokenErr(w, "invalid_grant", "Code not valid")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != c.challenge {
			tokenErr(w, "invalid_grant", "PKCE verification failed")
			return
		}
		delete(iss.codes, r.PostForm.Get("code"))
		email, nonce = c.email, c.nonce
	case "refresh_token":
		e, ok := iss.refreshTokens[r.PostForm.Get("refresh_token")]
		if !ok {
			tokenErr(w, "invalid_grant", "Token is not active")
			return
		}
		delete(iss.refreshTokens, r.PostForm.Get("refresh_token"))
		email = e
	default:
		tokenErr(w, "unsupported_grant_type", "")
		return
	}

	user := iss.users[email]
	now := iss.clock.Now()
	claims := jwt.MapClaims{
		"iss":            iss.URL(),
		"aud":            testClientID,
		"sub":            user.sub,
		"email":          email,
		"email_verified": user.verified,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	refreshToken := uuid.New().String()
	iss.refreshTokens[refreshToken] = email

	resp := map[string]any{
		"access_token":  iss.sign(jwt.MapClaims{"sub": user.sub, "email": email, "exp": now.Add(time.Hour).Unix()}),
		"token_type":    "Bearer",
		"refresh_token": refreshToken,
		"expires_in":    iss.expiresIn,
	}
	if !iss.omitIDToken {
		resp["id_token"] = iss.sign(claims)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (iss *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	iss.mu.Lock()
	defer iss.mu.Unlock()
	token := r.PostForm.Get("token")
	iss.revoked = append(iss.revoked, token)
	delete(iss.refreshTokens, token)
	w.WriteHeader(http.StatusOK)
}

func (iss *fakeIssuer) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "email is required"})
		return
	}

	iss.mu.Lock()
	defer iss.mu.Unlock()
	if _, exists := iss.users[req.Email]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user_exists"})
		return
	}
	if len(req.Password) < 8 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "weak_password", "error_description": "password too short"})
		return
	}

	sub := uuid.New().String()
	iss.users[req.Email] = &issuerUser{sub: sub, password: req.Password, verified: iss.autoVerify}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sub, "email": req.Email, "confirmed": iss.autoVerify})
}

func (iss *fakeIssuer) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(iss.key)
	require.NoError(iss.t, err)
	return signed
}

func tokenErr(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
