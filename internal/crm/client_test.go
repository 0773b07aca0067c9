package crm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"callaudit/internal/config"
	"callaudit/internal/crm"
	"callaudit/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *crm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return crm.NewClient(config.CRM{BaseURL: server.URL, APIKey: "crm-key"})
}

func TestResolveCase(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cases/fiche-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer crm-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"ref":"fiche-42","name":"Dupont Jean","group":"Équipe Sud"}`))
	})

	resolved, err := client.ResolveCase(context.Background(), "fiche-42")
	if err != nil {
		t.Fatalf("ResolveCase: %v", err)
	}
	if resolved.Name != "Dupont Jean" || resolved.Group != "Équipe Sud" {
		t.Fatalf("unexpected case: %#v", resolved)
	}
}

func TestResolveCaseNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := client.ResolveCase(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRecordingsConvertsPayloads(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cases/fiche-42/recordings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"recordings":[
			{"call_id":"call-1","recording_url":"https://rec/1","start_time":"2026-03-01T10:00:00Z","duration":120,
			 "words":[{"text":"Bonjour","start":0,"end":1,"type":"word","speaker_id":"spk0"}]},
			{"call_id":"call-2","duration":60,"text":"bonjour madame"}
		]}`))
	})

	sources, err := client.Recordings(context.Background(), "fiche-42")
	if err != nil {
		t.Fatalf("Recordings: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	first := sources[0]
	if first.CallID != "call-1" || len(first.Words) != 1 || first.Words[0].SpeakerID != "spk0" {
		t.Fatalf("unexpected first source: %#v", first)
	}
	if first.StartTime.IsZero() || first.Duration != 120 {
		t.Fatalf("metadata not parsed: %#v", first)
	}
	second := sources[1]
	if second.Text != "bonjour madame" || len(second.Words) != 0 {
		t.Fatalf("unexpected fallback source: %#v", second)
	}
}

func TestProductInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cases/fiche-42/product" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"description":"  Assurance habitation, garantie 2 ans  "}`))
	})

	info, err := client.ProductInfo(context.Background(), "fiche-42")
	if err != nil {
		t.Fatalf("ProductInfo: %v", err)
	}
	if info != "Assurance habitation, garantie 2 ans" {
		t.Fatalf("unexpected product info: %q", info)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusBadRequest, services.ErrValidation},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := client.ProductInfo(context.Background(), "x")
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestMissingBaseURLIsConfigurationError(t *testing.T) {
	client := crm.NewClient(config.CRM{})
	_, err := client.ResolveCase(context.Background(), "x")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
