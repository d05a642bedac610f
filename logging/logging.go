// Package logging monta o *slog.Logger usado pelos binários e serviços.
//
// Todos os componentes registram com as mesmas chaves estruturadas:
// "module" e "layer" fixos por componente, "operation" e "outcome" por evento.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New cria um logger com o nível e formato informados.
// format aceita "json" (padrão) ou "text".
func New(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel converte o nível textual; valores desconhecidos viram INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component devolve um logger derivado com as chaves fixas do componente.
// Se base for nil, usa slog.Default().
func Component(base *slog.Logger, module, layer string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("module", module, "layer", layer)
}

// Discard é um logger que descarta tudo; útil em testes.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
