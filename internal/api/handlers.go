package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/ingest"
	"github.com/sells-group/churn-risk/internal/insights"
	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
)

// recordPayload is one customer as JSON. Numbers and booleans are accepted
// alongside strings.
type recordPayload map[string]any

type batchRequest struct {
	Records []recordPayload `json:"records"`
}

type batchResponse struct {
	*risk.BatchResult
	Tiers []insights.Point `json:"tiers"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"trained": h.backend.Trained(),
	})
}

func (h *handler) modelInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := h.backend.Model()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handler) evaluation(w http.ResponseWriter, r *http.Request) {
	if rep := h.backend.LastEvaluation(); rep != nil {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	rep, err := h.backend.Evaluate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	var p recordPayload
	if err := h.decode(w, r, &p); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(p) == 0 {
		writeStatus(w, http.StatusBadRequest, "record is required")
		return
	}

	pred, err := h.backend.PredictOne(r.Context(), p.record())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (h *handler) predictBatch(w http.ResponseWriter, r *http.Request) {
	recs, ok := h.batchRecords(w, r)
	if !ok {
		return
	}
	br, err := h.backend.PredictBatch(r.Context(), recs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{BatchResult: br, Tiers: insights.TierSeries(br)})
}

func (h *handler) predictBatchCSV(w http.ResponseWriter, r *http.Request) {
	recs, ok := h.batchRecords(w, r)
	if !ok {
		return
	}
	br, err := h.backend.PredictBatch(r.Context(), recs)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="churn-risk.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := risk.WriteCSV(w, br.Predictions); err != nil {
		zap.L().Error("api: write csv", zap.Error(err))
	}
}

// batchRecords reads records from a JSON body or, for text/csv bodies, a
// CSV with a header row. It writes the error response itself.
func (h *handler) batchRecords(w http.ResponseWriter, r *http.Request) ([]model.CustomerRecord, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		recs, err := ingest.ReadCSV(r.Context(), http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			if model.IsMalformedBatch(err) {
				writeError(w, err)
			} else {
				writeStatus(w, http.StatusBadRequest, "invalid csv body")
			}
			return nil, false
		}
		return recs, true
	}

	var req batchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(req.Records) == 0 {
		writeStatus(w, http.StatusUnprocessableEntity, "records must not be empty")
		return nil, false
	}
	recs := make([]model.CustomerRecord, len(req.Records))
	for i, p := range req.Records {
		recs[i] = p.record()
	}
	return recs, true
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(v)
}

func (p recordPayload) record() model.CustomerRecord {
	row := make(map[string]string, len(p))
	for k, v := range p {
		switch x := v.(type) {
		case nil:
		case string:
			row[k] = x
		case float64:
			row[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			if x {
				row[k] = "Yes"
			} else {
				row[k] = "No"
			}
		default:
			b, _ := json.Marshal(x)
			row[k] = string(b)
		}
	}
	return model.RecordFromRow(row)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the pipeline error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var me *model.MalformedBatchError
	switch {
	case model.IsNotTrained(err):
		writeStatus(w, http.StatusConflict, "model not trained")
	case errors.As(err, &me):
		writeStatus(w, http.StatusUnprocessableEntity, me.Error())
	case model.IsEmptyDataset(err):
		writeStatus(w, http.StatusUnprocessableEntity, "no rows to score")
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError, "internal error")
	}
}
