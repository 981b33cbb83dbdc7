package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
	"golang.org/x/oauth2"
)

// Provider-specific structs
type gitHubUser struct {
	Login string `json:"login"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type googleUser struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Sub           string `json:"sub"`
}

// OAuthAPI describes where a provider's profile lives once a token has been
// obtained. EmailsURL is only used when the profile hides the email.
type OAuthAPI struct {
	URL       string
	EmailsURL string
	Headers   map[string]string
}

var DefaultOAuthAPIs = map[string]OAuthAPI{
	"github": {
		URL:       "https://api.github.com/user",
		EmailsURL: "https://api.github.com/user/emails",
		Headers: map[string]string{
			"X-GitHub-Api-Version": "2022-11-28",
			"Accept":               "application/vnd.github+json",
		},
	},
	"google": {
		URL:     "https://openidconnect.googleapis.com/v1/userinfo",
		Headers: map[string]string{},
	},
}

var oauthConfigsTemplate = map[string]*oauth2.Config{
	"github": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
		},
		Scopes: []string{"read:user", "user:email"},
	},
	"google": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"openid", "email", "profile"},
	},
}

func addOauthEndpointsAndScopes(oauthConfigs map[string]*oauth2.Config) (map[string]*oauth2.Config, error) {
	for provider := range oauthConfigs {
		template, ok := oauthConfigsTemplate[provider]
		if !ok {
			return nil, fmt.Errorf("unsupported provider: %s", provider)
		}
		oauthConfigs[provider].Endpoint = template.Endpoint
		oauthConfigs[provider].Scopes = template.Scopes
	}

	return oauthConfigs, nil
}

func (s *Service) oauthAPI(provider string) (OAuthAPI, bool) {
	if api, ok := s.OAuthAPIs[provider]; ok {
		return api, true
	}
	api, ok := DefaultOAuthAPIs[provider]
	return api, ok
}

// HandleOauth exchanges an authorization code and returns the provider's
// view of the user. The user is not persisted.
func (s *Service) HandleOauth(ctx context.Context, provider string, code string) (models.User, error) {
	conf, ok := s.OAuthConfigs[provider]
	if !ok {
		return models.User{}, fmt.Errorf("unsupported provider: %s", provider)
	}
	api, ok := s.oauthAPI(provider)
	if !ok {
		return models.User{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return models.User{}, fmt.Errorf("exchange code: %w", err)
	}

	client := conf.Client(ctx, tok)
	body, err := fetchOAuthJSON(ctx, client, api.URL, api.Headers)
	if err != nil {
		return models.User{}, err
	}

	user, err := parseUser(body, provider)
	if err != nil {
		return models.User{}, err
	}

	if user.Email == "" && api.EmailsURL != "" {
		emails, err := fetchOAuthJSON(ctx, client, api.EmailsURL, api.Headers)
		if err != nil {
			return models.User{}, err
		}
		user.Email, err = primaryGitHubEmail(emails)
		if err != nil {
			return models.User{}, err
		}
	}

	if user.Email == "" {
		return models.User{}, errors.New("provider did not return an email address")
	}
	if user.Name == "" {
		user.Name = strings.Split(user.Email, "@")[0]
	}
	return user, nil
}

func fetchOAuthJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return body, nil
}

func parseUser(jsonData []byte, provider string) (models.User, error) {
	var u models.User
	u.Provider = provider

	switch provider {
	case "github":
		var gh gitHubUser
		if err := json.Unmarshal(jsonData, &gh); err != nil {
			return models.User{}, err
		}
		if gh.ID == 0 {
			return models.User{}, errors.New("github user id missing")
		}
		u.ProviderId = strconv.Itoa(gh.ID)
		u.Email = gh.Email
		u.Name = gh.Name
		if u.Name == "" {
			u.Name = gh.Login
		}
	case "google":
		var g googleUser
		if err := json.Unmarshal(jsonData, &g); err != nil {
			return models.User{}, err
		}
		if g.Sub == "" {
			return models.User{}, errors.New("google subject missing")
		}
		u.ProviderId = g.Sub
		if g.EmailVerified {
			u.Email = g.Email
		}
		u.Name = g.Name
	default:
		return models.User{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	u.Name = truncateRunes(sanitizeText(u.Name), maxNameLength)
	return u, nil
}

func primaryGitHubEmail(jsonData []byte) (string, error) {
	var emails []gitHubEmail
	if err := json.Unmarshal(jsonData, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("no verified primary email on github account")
}

const tokenLifetime = 24 * time.Hour

type TokenClaims struct {
	UserId     string
	Provider   string
	ProviderId string
	Expiry     time.Time
}

func (s *Service) CreateJWT(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        user.Id,
		"provider":   user.Provider,
		"providerId": user.ProviderId,
		"exp":        now.Add(tokenLifetime).Unix(),
		"iat":        now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.JWTSecret)
}

func (s *Service) VerifyJWT(tokenString string) (TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return TokenClaims{}, err
	}

	if !token.Valid {
		return TokenClaims{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, errors.New("invalid token claims")
	}

	userId, err := claims.GetSubject()
	if err != nil || userId == "" {
		return TokenClaims{}, errors.New("missing sub claim")
	}

	provider, ok := claims["provider"].(string)
	if !ok {
		return TokenClaims{}, errors.New("missing provider claim")
	}

	providerId, ok := claims["providerId"].(string)
	if !ok {
		return TokenClaims{}, errors.New("missing providerId claim")
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return TokenClaims{}, errors.New("missing exp claim")
	}

	return TokenClaims{
		UserId:     userId,
		Provider:   provider,
		ProviderId: providerId,
		Expiry:     expiry.Time,
	}, nil
}

func (s *Service) AuthenticateToken(ctx context.Context, token string) (models.User, error) {
	if len(token) == 0 {
		return models.User{}, errors.New("token not provided")
	}

	claims, err := s.VerifyJWT(token)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.Store.GetUser(ctx, claims.Provider, claims.ProviderId)
	if err != nil {
		return models.User{}, err
	}
	if user.Id != claims.UserId {
		return models.User{}, errors.New("token subject does not match user")
	}

	return user, nil
}

func (s *Service) Login(ctx context.Context, provider, code string) (models.User, string, error) {
	user, err := s.HandleOauth(ctx, provider, code)
	if err != nil {
		return models.User{}, "", fmt.Errorf("oauth failed: %w", err)
	}

	createdUser, err := s.Store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrEmailTaken) {
		return models.User{}, "", newValidationError("email", "is already registered with another sign-in provider")
	}
	if err != nil {
		return models.User{}, "", fmt.Errorf("create user failed: %w", err)
	}

	token, err := s.CreateJWT(createdUser)
	if err != nil {
		return models.User{}, "", fmt.Errorf("token generation failed: %w", err)
	}

	logutils.Log.WithFields(logutils.Fields{
		"userId":   createdUser.Id,
		"provider": provider,
	}).Info("user logged in")

	return createdUser, token, nil
}
