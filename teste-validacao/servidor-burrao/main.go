// servidor-burrao simula a mesa OTC atrás do gateway para testes manuais
// de limites e anomalias.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"governance-gateway/logging"
)

func main() {
	logger := logging.New(os.Stdout, "info", "text")

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
		logger.Info("screen served", "remote", r.RemoteAddr)
	})
	r.Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"token": uuid.NewString()})
	})
	r.Post("/api/trades", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusCreated, map[string]any{"trade_id": uuid.NewString(), "created_at": time.Now().UTC()})
	})
	r.Post("/api/messages", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusCreated, map[string]any{"message_id": uuid.NewString()})
	})
	r.Post("/api/kyc", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusAccepted, map[string]any{"submission_id": uuid.NewString()})
	})
	r.Get("/api/*", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{"path": r.URL.Path})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("mock upstream listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func reply(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
