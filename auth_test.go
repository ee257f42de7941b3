package main

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"testing/quick"
)

// ============================================================================
// Signup
// ============================================================================

func TestSignupReturnsSecretCode(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)

	count := 0
	signup := func(suffix uint16) bool {
		count++
		name := fmt.Sprintf("Player%d_%d", count, suffix)
		tp := tc.signupPlayer(name)
		if tp.ID <= 0 || len(tp.SecretCode) != 8 {
			t.Logf("signup %s: id %d secret %q", name, tp.ID, tp.SecretCode)
			return false
		}
		stored, err := tc.store.PlayerByID(tp.ID)
		return err == nil && stored.Name == name && stored.SecretCode == tp.SecretCode
	}
	if err := quick.Check(signup, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func TestSignupRejectsDuplicateAndEmptyNames(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	tc.signupPlayer("Alice")

	other := &TestPlayer{ctx: tc, client: tc.newClient()}
	if status := other.form("/signup", url.Values{"name": {"Alice"}}, nil); status != http.StatusConflict {
		t.Errorf("duplicate signup: status %d, want 409", status)
	}
	if status := other.form("/signup", url.Values{"name": {"   "}}, nil); status != http.StatusBadRequest {
		t.Errorf("blank signup: status %d, want 400", status)
	}
}

// ============================================================================
// Login and logout
// ============================================================================

func TestLogin(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	alice := tc.signupPlayer("Alice")

	tests := []struct {
		name   string
		values url.Values
		want   int
	}{
		{"correct secret", url.Values{"name": {"Alice"}, "secret_code": {alice.SecretCode}}, http.StatusOK},
		{"wrong secret", url.Values{"name": {"Alice"}, "secret_code": {"nope"}}, http.StatusUnauthorized},
		{"unknown player", url.Values{"name": {"Bob"}, "secret_code": {alice.SecretCode}}, http.StatusUnauthorized},
		{"missing secret", url.Values{"name": {"Alice"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &TestPlayer{ctx: tc, client: tc.newClient()}
			var view PlayerView
			if got := device.form("/login", tt.values, &view); got != tt.want {
				t.Fatalf("status %d, want %d", got, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			if view.ID != alice.ID || view.SecretCode != "" {
				t.Errorf("login view = %+v", view)
			}
			// The new device has its own session.
			if status := device.do(http.MethodPost, "/lobbies", nil); status != http.StatusCreated {
				t.Errorf("create lobby after login: status %d", status)
			}
		})
	}
}

func TestLogoutEndsSession(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	alice := tc.signupPlayer("Alice")

	if status := alice.do(http.MethodGet, "/lobbies/1", nil); status != http.StatusNotFound {
		t.Fatalf("logged in lookup: status %d, want 404", status)
	}
	if status := alice.do(http.MethodPost, "/logout", nil); status != http.StatusNoContent {
		t.Fatalf("logout: status %d", status)
	}
	if status := alice.do(http.MethodGet, "/lobbies/1", nil); status != http.StatusUnauthorized {
		t.Errorf("after logout: status %d, want 401", status)
	}
}

func TestRequirePlayerRejectsForgedCookie(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)

	req, _ := http.NewRequest(http.MethodPost, tc.baseURL+"/lobbies", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "12345"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("forged session: status %d, want 401", resp.StatusCode)
	}
}
