package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/scoring"
	"github.com/sw33tLie/candyvend/pkg/stock"
	"github.com/sw33tLie/candyvend/pkg/storage"
)

type envelope struct {
	Result interface{} `json:"result"`
}

func writeResult(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Result: result}); err != nil {
		utils.Log.Warnf("Encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// stockRecord renders a row the way the stock service does: every value is
// a string.
func stockRecord(tier stock.Tier, row storage.StockRow) map[string]string {
	rec := make(map[string]string, 6)
	if tier == stock.Vendor {
		rec["vendor_name"] = row.Vendor
	} else {
		rec["floor_number"] = strconv.Itoa(row.Floor)
	}
	for _, t := range candy.All() {
		rec[candy.APIFieldName(t)] = strconv.Itoa(row.Counts.Get(t))
	}
	return rec
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	tier, ok := stock.TierForTable(r.URL.Query().Get("table_name"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown table_name")
		return
	}

	rows, err := s.DB.GetStock(r.Context(), tier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if tier == stock.Vendor {
		if len(rows) == 0 {
			writeResult(w, http.StatusOK, map[string]string{})
			return
		}
		writeResult(w, http.StatusOK, stockRecord(tier, rows[0]))
		return
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, stockRecord(tier, row))
	}
	writeResult(w, http.StatusOK, out)
}

func (s *Server) handlePatchStock(w http.ResponseWriter, r *http.Request) {
	tier, ok := stock.TierForTable(r.PathValue("table"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stock table")
		return
	}

	floor := 0
	if raw := r.PathValue("floor"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "floor must be a number")
			return
		}
		floor = n
	}
	if err := stock.ValidateFloor(tier, floor); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body map[string]json.Number
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one stock field expected")
		return
	}

	for field, raw := range body {
		n, err := strconv.Atoi(raw.String())
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
			return
		}
		if err := s.DB.SetStockField(r.Context(), tier, floor, field, n); err != nil {
			switch {
			case errors.Is(err, storage.ErrUnknownField):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, storage.ErrNoSuchFloor):
				writeError(w, http.StatusNotFound, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		utils.Log.Debugf("%s floor %d: %s=%d", tier.Table(), floor, field, n)
	}
	writeResult(w, http.StatusOK, true)
}

type registerRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleRegisterScore(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if err := scoring.ValidateEmail(email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sysID, err := s.DB.RegisterScore(r.Context(), email, s.cfg.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.Log.Infof("Registered %s for scoring (sys_id %s)", email, sysID)
	writeResult(w, http.StatusOK, map[string]string{"sys_id": sysID})
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	req, found, err := s.DB.GetScore(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, storage.ErrNotRegistered.Error())
		return
	}

	if req.Score == "" && s.cfg.AutoScore && s.cfg.Now().Sub(req.RegisteredAt) >= s.cfg.ScoreDelay {
		req.Score = strconv.Itoa(s.randomScore())
		if err := s.DB.SetScore(r.Context(), email, req.Score); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		utils.Log.Infof("Scored %s: %s", email, req.Score)
	}
	writeResult(w, http.StatusOK, map[string]string{"score": req.Score})
}

type setScoreRequest struct {
	Email string      `json:"email"`
	Score json.Number `json:"score"`
}

func (s *Server) handleSetScore(w http.ResponseWriter, r *http.Request) {
	var req setScoreRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.DB.SetScore(r.Context(), strings.TrimSpace(req.Email), req.Score.String()); err != nil {
		if errors.Is(err, storage.ErrNotRegistered) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true)
}
