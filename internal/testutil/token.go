package testutil

import (
	"testing"
	"time"

	"socialhub/internal/microservices/http-api/service"
)

// TestSecret is a valid signing key for tests
const TestSecret = "0123456789abcdef0123456789abcdef"

// NewToken mints a short lived credential for userID signed with TestSecret,
// using the same claims the server issues.
func NewToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := service.NewJWTVerifier(TestSecret).IssueToken(userID, userID, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
