package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
)

func TestAuthHandlerTokenAndMe(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := service.NewAuthService(nil, zap.NewNop(), service.AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		OwnerPasswordHash: string(hash),
	})

	h := NewAuthHandler(auth)
	r := newTestRouter()
	r.POST("/auth/token", h.Token)
	r.GET("/auth/me", middleware.JWT(auth), h.Me)

	w := performRequest(r, http.MethodPost, "/auth/token", models.TokenRequest{Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(r, http.MethodPost, "/auth/token", models.TokenRequest{Password: "letmein"})
	require.Equal(t, http.StatusOK, w.Code)
	var token models.TokenResponse
	require.NoError(t, jsonUnmarshal(decodeEnvelope(t, w).Data, &token))

	req := newAuthorizedRequest(http.MethodGet, "/auth/me", token.AccessToken)
	rec := serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner":true`)

	rec = performRequest(r, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type tokenIssuerStub struct{}

func (tokenIssuerStub) IssueToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	return &models.TokenResponse{AccessToken: "abc"}, nil
}

func TestAuthHandlerRejectsMalformedBody(t *testing.T) {
	r := newTestRouter()
	r.POST("/auth/token", NewAuthHandler(tokenIssuerStub{}).Token)

	w := performRequest(r, http.MethodPost, "/auth/token", "[")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
