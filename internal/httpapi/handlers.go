package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/DoyleJ11/chess-relay/internal/gateway"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6

	// bytes at or above this are skipped so every charset symbol is equally likely
	codeByteLimit = 256 - 256%len(codeCharset)

	maxCodeAttempts = 16
)

var errCodeSpaceExhausted = errors.New("could not find a free session code")

// GenerateCode returns a random session code drawn from crypto/rand.
func GenerateCode() (string, error) {
	return codeFrom(rand.Reader)
}

func codeFrom(r io.Reader) (string, error) {
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(code) < codeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			code = append(code, codeCharset[int(b)%len(codeCharset)])
			if len(code) == codeLength {
				break
			}
		}
	}
	return string(code), nil
}

// freeCode draws codes until one is not in use.
func freeCode(inUse func(string) bool, gen func() (string, error)) (string, error) {
	for range maxCodeAttempts {
		c, err := gen()
		if err != nil {
			return "", err
		}
		if !inUse(c) {
			return c, nil
		}
	}
	return "", errCodeSpaceExhausted
}

// CreateSession hands out an unused code. The session itself is created by
// the first join.
func CreateSession(gw *gateway.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := freeCode(gw.Exists, GenerateCode)
		if err != nil {
			log.Error("generate session code", zap.Error(err))
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

func GetSession(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := gw.Describe(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("chess relay server is running\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
