package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/DoyleJ11/market-call-backend/internal/hub"
	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	codeLength    = 6
	maxAttempts   = 16
	hostKeyHeader = "X-Host-Key"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createdGame struct {
	Code string `json:"code"`
}

func CreateGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for attempt := 0; attempt < maxAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				log.Error("generate code", zap.Error(err))
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if h.Create(r.Context(), code) == nil {
				log.Debug("collision on code, regenerating", zap.String("game", code))
				continue
			}
			writeJSON(w, http.StatusCreated, createdGame{Code: code})
			return
		}
		http.Error(w, "failed to create game", http.StatusInternalServerError)
	}
}

func GetGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		lb := h.Lookup(r.Context(), code)
		if lb == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		reply := make(chan lobby.View, 1)
		if !lb.Send(r.Context(), lobby.GetState{Reply: reply}) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, v.State)
		case <-lb.Done():
			http.Error(w, "game not found", http.StatusNotFound)
		case <-r.Context().Done():
		}
	}
}

type gameList struct {
	Codes []string `json:"codes"`
}

func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes := h.List(r.Context())
		if codes == nil {
			codes = []string{}
		}
		writeJSON(w, http.StatusOK, gameList{Codes: codes})
	}
}

// DeleteGame stops a finished or abandoned game. The default game always stays.
func DeleteGame(h *hub.Hub, defaultGame, hostKey string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hostKey != "" && r.Header.Get(hostKeyHeader) != hostKey {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		code := strings.ToUpper(chi.URLParam(r, "code"))
		if code == defaultGame {
			http.Error(w, "default game cannot be removed", http.StatusConflict)
			return
		}
		if !h.Remove(r.Context(), code) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		log.Info("game deleted", zap.String("game", code))
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
