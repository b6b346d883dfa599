package main

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type behavior struct {
	latency   time.Duration
	jitter    time.Duration
	errorRate float64
}

type vet struct {
	Name        string   `json:"name"`
	Specialties []string `json:"specialties"`
}

var vets = []vet{
	{Name: "James Carter"},
	{Name: "Helen Leary", Specialties: []string{"radiology"}},
	{Name: "Linda Douglas", Specialties: []string{"dentistry", "surgery"}},
	{Name: "Rafael Ortega", Specialties: []string{"surgery"}},
}

func newHandler(b behavior) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		respondHTML(w, "Welcome", "<p>Pet clinic home</p>")
	})
	mux.HandleFunc("GET /vets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/json" {
			respondJSON(w, http.StatusOK, map[string]any{"vets": vets})
			return
		}
		body := "<ul>"
		for _, v := range vets {
			body += fmt.Sprintf("<li>%s</li>", v.Name)
		}
		respondHTML(w, "Veterinarians", body+"</ul>")
	})
	mux.HandleFunc("GET /owners/find", func(w http.ResponseWriter, r *http.Request) {
		respondHTML(w, "Find Owners", `<form action="/owners"><input name="lastName"/></form>`)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	return b.wrap(mux)
}

// wrap delays every response and fails a share of them. Health checks are
// never delayed.
func (b behavior) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			delay := b.latency
			if b.jitter > 0 {
				delay += rand.N(b.jitter)
			}
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
			if b.errorRate > 0 && rand.Float64() < b.errorRate {
				respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "injected failure"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func respondHTML(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>", title, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.NewEncoder(w).Encode(payload)
}
