package service

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "rahasia", JWTExpiry: time.Hour})

	tok, err := auth.IssueToken(TokenTypeAdmin, 4, 0, []string{string(model.PermissionAttemptsForceSubmit)})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TokenType != TokenTypeAdmin || claims.UserID != 4 {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.HasPermission(model.PermissionAttemptsForceSubmit) || claims.HasPermission(model.PermissionExamsMonitor) {
		t.Fatalf("permissions = %v", claims.Permissions)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "rahasia", JWTExpiry: time.Hour})
	other := NewAuthService(&config.Config{JWTSecret: "lain", JWTExpiry: time.Hour})
	expired := NewAuthService(&config.Config{JWTSecret: "rahasia", JWTExpiry: -time.Minute})

	foreign, _ := other.IssueToken(TokenTypeStudent, 1, 2, nil)
	stale, _ := expired.IssueToken(TokenTypeStudent, 1, 2, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
