package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPAuthority_Check(t *testing.T) {
	var gotReq checkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(checkResponse{Level: "write"})
	}))
	defer srv.Close()

	authority, err := NewHTTPAuthority(AuthorityConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPAuthority failed: %v", err)
	}
	defer authority.Close()

	level, err := authority.Check(context.Background(), "tok-1", "list1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if level != LevelWrite {
		t.Errorf("level = %q, want write", level)
	}
	if gotReq.Credential != "tok-1" || gotReq.Resource != "list1" {
		t.Errorf("request = %+v, want credential/resource echoed", gotReq)
	}
}

func TestHTTPAuthority_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	authority, err := NewHTTPAuthority(AuthorityConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPAuthority failed: %v", err)
	}
	defer authority.Close()

	_, err = authority.Check(context.Background(), "tok", "res")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", statusErr.Code)
	}
}

func TestHTTPAuthority_InvalidLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(checkResponse{Level: "superuser"})
	}))
	defer srv.Close()

	authority, err := NewHTTPAuthority(AuthorityConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPAuthority failed: %v", err)
	}
	defer authority.Close()

	if _, err := authority.Check(context.Background(), "tok", "res"); err == nil {
		t.Error("Check with invalid level succeeded, want error")
	}
}

func TestHTTPAuthority_RequiresURL(t *testing.T) {
	if _, err := NewHTTPAuthority(AuthorityConfig{}); err == nil {
		t.Error("NewHTTPAuthority without URL succeeded, want error")
	}
}

func TestHTTPAuthority_CustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Adit-Token"); got != "secret" {
			t.Errorf("X-Adit-Token = %q, want secret", got)
		}
		_ = json.NewEncoder(w).Encode(checkResponse{Level: "none"})
	}))
	defer srv.Close()

	authority, err := NewHTTPAuthority(AuthorityConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Adit-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("NewHTTPAuthority failed: %v", err)
	}
	defer authority.Close()

	level, err := authority.Check(context.Background(), "tok", "res")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if level != LevelNone {
		t.Errorf("level = %q, want none", level)
	}
}
