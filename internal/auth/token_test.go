package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentity_RequiresBusiness(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"user", false},
		{"admin", false},
		{"business", true},
		{"business-dashboard", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			id := Identity{Role: tt.role}
			if got := id.RequiresBusiness(); got != tt.want {
				t.Errorf("RequiresBusiness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStaticTokenSource(t *testing.T) {
	src := StaticTokenSource{Value: "fixed"}
	tok, err := src.Token(context.Background())
	if err != nil || tok != "fixed" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	empty := StaticTokenSource{}
	if _, err := empty.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty source error = %v, want ErrNoToken", err)
	}
}

func TestClient_Refresh(t *testing.T) {
	var gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/auth/refresh-token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotRefresh = body.RefreshToken

		json.NewEncoder(w).Encode(map[string]string{
			"token":        "access-2",
			"refreshToken": "refresh-2",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "access-1", "refresh-1")

	tok, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "access-2" {
		t.Errorf("Refresh() = %q, want access-2", tok)
	}
	if gotRefresh != "refresh-1" {
		t.Errorf("server saw refresh token %q, want refresh-1", gotRefresh)
	}

	// The renewed access token is now the cached one.
	tok, err = c.Token(context.Background())
	if err != nil || tok != "access-2" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	// A second refresh presents the rotated refresh token.
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotRefresh != "refresh-2" {
		t.Errorf("server saw refresh token %q, want refresh-2", gotRefresh)
	}
}

func TestClient_Token_RefreshesWhenEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]string{"token": "fresh"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "refresh-1")
	tok, err := c.Token(context.Background())
	if err != nil || tok != "fresh" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}
	if calls != 1 {
		t.Errorf("refresh calls = %d, want 1", calls)
	}

	// Cached now; no second round-trip.
	if _, err := c.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("cached token still hit the server (%d calls)", calls)
	}
}

func TestClient_Refresh_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "dead-refresh")
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("rejected refresh error = %v, want ErrNoToken", err)
	}
}

func TestClient_Refresh_NoRefreshToken(t *testing.T) {
	c := NewClient("http://unused", "", "")
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
}

func TestClient_Me(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(Identity{UserID: "u1", Role: "business", BusinessID: "b1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "access-1", "")
	id, err := c.Me(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Identity{UserID: "u1", Role: "business", BusinessID: "b1"}
	if id != want {
		t.Errorf("Me() = %+v, want %+v", id, want)
	}
}
