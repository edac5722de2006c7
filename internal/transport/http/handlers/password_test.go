package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const strongPassword = "Velvet-Quasar-Mango-57!"

func requestResetToken(t *testing.T, fixture *apiFixture, identifier string) string {
	t.Helper()

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": identifier,
	}, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("reset request: expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		DevToken *string `json:"dev_token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.DevToken == nil || *resp.DevToken == "" {
		t.Fatalf("expected dev_token in development mode, got %s", rr.Body.String())
	}
	return *resp.DevToken
}

func TestResetRequestUnknownIdentifierAccepted(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": "nobody@kennel.example",
	}, "")

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for unknown identifier, got %d", rr.Code)
	}

	var resp map[string]any
	decodeJSON(t, rr, &resp)

	if resp["message"] != "If the account exists, a reset link has been sent" {
		t.Fatalf("unexpected message %v", resp["message"])
	}
	// No account means no token was minted, so even development mode has
	// nothing to surface.
	if _, present := resp["dev_token"]; present {
		t.Fatalf("unknown identifier must not yield a token: %s", rr.Body.String())
	}
	if id, _ := resp["request_id"].(string); id == "" {
		t.Fatalf("expected a request id either way, got %s", rr.Body.String())
	}
}

func TestResetRequestProductionHidesToken(t *testing.T) {
	fixture := newAPIFixture(t, false, activeAccount())

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": "petrova@kennel.example",
	}, "")

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	var resp map[string]any
	decodeJSON(t, rr, &resp)

	for _, key := range []string{"dev_token", "dev_link"} {
		if _, present := resp[key]; present {
			t.Fatalf("production response must not carry %s: %s", key, rr.Body.String())
		}
	}
	if resp["masked_destination"] != "pet***@kennel.example" {
		t.Fatalf("unexpected masked destination %v", resp["masked_destination"])
	}
}

func TestResetRequestDevModeSurfacesToken(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": "handler.petrova",
	}, "")

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	var resp struct {
		DevToken *string `json:"dev_token"`
		DevLink  *string `json:"dev_link"`
	}
	decodeJSON(t, rr, &resp)

	if resp.DevToken == nil || *resp.DevToken == "" {
		t.Fatalf("expected dev_token in development mode")
	}
	if resp.DevLink == nil || !strings.HasPrefix(*resp.DevLink, "https://kennel.example/reset?token=") {
		t.Fatalf("unexpected dev_link %v", resp.DevLink)
	}
}

func TestPasswordResetEndToEnd(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())
	token := requestResetToken(t, fixture, "petrova@kennel.example")

	confirm := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        token,
		"new_password": strongPassword,
	}, "")
	if confirm.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", confirm.Code, confirm.Body.String())
	}

	oldLogin := fixture.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"identifier": "handler.petrova",
		"password":   "Correct-Horse-9!",
	}, "")
	if oldLogin.Code != http.StatusUnauthorized {
		t.Fatalf("old password must stop working, got %d", oldLogin.Code)
	}

	newLogin := fixture.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"identifier": "handler.petrova",
		"password":   strongPassword,
	}, "")
	if newLogin.Code != http.StatusOK {
		t.Fatalf("new password must work, got %d: %s", newLogin.Code, newLogin.Body.String())
	}
}

func TestResetConfirmWeakPasswordRetryable(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())
	token := requestResetToken(t, fixture, "handler.petrova")

	weak := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        token,
		"new_password": "password1",
	}, "")
	if weak.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d: %s", weak.Code, weak.Body.String())
	}

	var weakResp struct {
		Error   string   `json:"error"`
		Reasons []string `json:"reasons"`
	}
	decodeJSON(t, weak, &weakResp)
	if len(weakResp.Reasons) == 0 {
		t.Fatalf("expected policy violation reasons, got %s", weak.Body.String())
	}

	// The token survives a rejected password and redeems on retry.
	retry := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        token,
		"new_password": strongPassword,
	}, "")
	if retry.Code != http.StatusOK {
		t.Fatalf("expected retry with strong password to succeed, got %d: %s", retry.Code, retry.Body.String())
	}
}

func TestResetConfirmTokenSingleUse(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())
	token := requestResetToken(t, fixture, "handler.petrova")

	first := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        token,
		"new_password": strongPassword,
	}, "")
	if first.Code != http.StatusOK {
		t.Fatalf("first confirm failed: %d", first.Code)
	}

	second := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        token,
		"new_password": "Another-Strong-Passphrase-31!",
	}, "")
	if second.Code != http.StatusGone {
		t.Fatalf("expected 410 for consumed token, got %d", second.Code)
	}
}

func TestResetConfirmUnknownTokenGone(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        "never-issued",
		"new_password": strongPassword,
	}, "")
	if rr.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rr.Code)
	}
}

func TestResetRequestSupersedesPriorTokens(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	first := requestResetToken(t, fixture, "handler.petrova")
	second := requestResetToken(t, fixture, "handler.petrova")

	stale := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        first,
		"new_password": strongPassword,
	}, "")
	if stale.Code != http.StatusGone {
		t.Fatalf("expected superseded token to get 410, got %d", stale.Code)
	}

	current := fixture.do(t, http.MethodPost, "/api/v1/password/reset/confirm", gin.H{
		"token":        second,
		"new_password": strongPassword,
	}, "")
	if current.Code != http.StatusOK {
		t.Fatalf("expected latest token to redeem, got %d: %s", current.Code, current.Body.String())
	}
}

func TestResetRequestRateLimitedPerIdentifier(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	for i := 0; i < 3; i++ {
		rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
			"identifier": "handler.petrova",
		}, "")
		if rr.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i+1, rr.Code)
		}
	}

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": "handler.petrova",
	}, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on fourth request, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") != "3600" {
		t.Fatalf("expected Retry-After 3600, got %q", rr.Header().Get("Retry-After"))
	}

	var problem struct {
		Status int    `json:"status"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode problem details: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected problem status %d", problem.Status)
	}

	// Throttling is per identifier: another account is unaffected.
	other := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{
		"identifier": "someone.else@kennel.example",
	}, "")
	if other.Code != http.StatusAccepted {
		t.Fatalf("expected other identifier to pass, got %d", other.Code)
	}
}

func TestResetRequestMissingIdentifierBadRequest(t *testing.T) {
	fixture := newAPIFixture(t, true, activeAccount())

	rr := fixture.do(t, http.MethodPost, "/api/v1/password/reset/request", gin.H{}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
