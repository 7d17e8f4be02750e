// Command sample_target serves fixed bodies for trying httpsample locally.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// latin1Body is "café" in ISO-8859-1; the 0xE9 byte is not valid UTF-8.
var latin1Body = []byte{'c', 'a', 'f', 0xE9}

func main() {
	port := flag.Int("port", 0, "Listening port")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("sample target listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, newMux()))
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /text", handleText)
	mux.HandleFunc("GET /latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write(latin1Body)
	})
	mux.HandleFunc("GET /binary", func(w http.ResponseWriter, r *http.Request) {
		// Served as UTF-8 text so the sampler records it with length 0.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(latin1Body)
	})
	mux.HandleFunc("GET /status/{code}", handleStatus)
	mux.HandleFunc("GET /headers", handleHeaders)
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path})
	})
	return mux
}

// handleText writes size bytes of ASCII after an optional delay.
func handleText(w http.ResponseWriter, r *http.Request) {
	size := 1024
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}
	if raw := r.URL.Query().Get("delay"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid delay", http.StatusBadRequest)
			return
		}
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strings.Repeat("x", size)))
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "status %d", code)
}

// handleHeaders echoes the request headers so header flags can be checked by eye.
func handleHeaders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, r.Header)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
