package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/gorilla/mux"
)

func (wf *Workflow) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", wf.GetStatusHandler).Methods("GET")
	r.HandleFunc("/ingestions", wf.ListIngestionsHandler).Methods("GET")
	r.HandleFunc("/ingestions/status", wf.IngestionsStatusHandler).Methods("GET")
	r.HandleFunc("/ingestion", wf.SubmitHandler).Methods("POST")
	r.HandleFunc("/ingestion/{id}", wf.GetIngestionHandler).Methods("GET")
	r.HandleFunc("/ingestion/{id}", wf.DeleteIngestionHandler).Methods("DELETE")
	r.HandleFunc("/ingestion/{id}/retry", wf.RetryIngestionHandler).Methods("PUT")
	r.HandleFunc("/ingestion/{id}/retry/{force}", wf.RetryIngestionHandler).Methods("PUT")
	r.HandleFunc("/ingestion/{id}/fail", wf.FailIngestionHandler).Methods("PUT")
	r.HandleFunc("/ingestion/{id}/force/{status}", wf.ForceIngestionStatusHandler).Methods("PUT")
	r.HandleFunc("/dataset/{name}", wf.GetDatasetHandler).Methods("GET")
	return r
}

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.As(err, &db.ErrNotFound{}):
		w.WriteHeader(404)
	case errors.As(err, &db.ErrAlreadyExists{}):
		w.WriteHeader(409)
	default:
		log.Logger(req.Context()).Sugar().Warnf("%s %s: %v", req.Method, req.URL.Path, err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
	}
}

func queryInt(req *http.Request, key string) (int, error) {
	v := req.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// SubmitHandler records and queues a new ingestion
func (wf *Workflow) SubmitHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	job := common.IngestJob{}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	if err := job.Validate(); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	id, err := wf.Submit(ctx, job)
	if err != nil {
		writeError(w, req, err)
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(struct {
		ID string `json:"id"`
	}{id})
}

// GetIngestionHandler retrieves an ingestion and its datasets
func (wf *Workflow) GetIngestionHandler(w http.ResponseWriter, req *http.Request) {
	ing, err := wf.Ingestion(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		writeError(w, req, err)
		return
	}
	json.NewEncoder(w).Encode(ing)
}

// DeleteIngestionHandler deletes an ingestion and its datasets
func (wf *Workflow) DeleteIngestionHandler(w http.ResponseWriter, req *http.Request) {
	if err := wf.DeleteIngestion(req.Context(), mux.Vars(req)["id"]); err != nil {
		writeError(w, req, err)
		return
	}
	w.WriteHeader(204)
}

// ListIngestionsHandler lists the ingestions filtered by the query parameters pattern, source and status,
// paginated with page & limit
func (wf *Workflow) ListIngestionsHandler(w http.ResponseWriter, req *http.Request) {
	page, err := queryInt(req, "page")
	if err != nil {
		w.WriteHeader(400)
		return
	}
	limit, err := queryInt(req, "limit")
	if err != nil {
		w.WriteHeader(400)
		return
	}
	q := req.URL.Query()
	status := q.Get("status")
	if status != "" {
		s, err := common.StatusString(status)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
			return
		}
		status = s.String()
	}
	ings, err := wf.Ingestions(req.Context(), q.Get("pattern"), q.Get("source"), status, page, limit)
	if err != nil {
		writeError(w, req, err)
		return
	}
	json.NewEncoder(w).Encode(ings)
}

// IngestionsStatusHandler returns the number of ingestions per status
func (wf *Workflow) IngestionsStatusHandler(w http.ResponseWriter, req *http.Request) {
	status, err := wf.IngestionsStatus(req.Context())
	if err != nil {
		writeError(w, req, err)
		return
	}
	json.NewEncoder(w).Encode(status)
}

// GetStatusHandler prints a summary of the ingestions
func (wf *Workflow) GetStatusHandler(w http.ResponseWriter, req *http.Request) {
	s, err := wf.IngestionsStatus(req.Context())
	if err != nil {
		writeError(w, req, err)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintf(w, "Ingestions:\n  new:          %d\n  downloading:  %d\n  productizing: %d\n  done:         %d\n  skipped:      %d\n  retry:        %d\n  failed:       %d\n  Total:        %d\n",
		s.New, s.Downloading, s.Productizing, s.Done, s.Skipped, s.Retry, s.Failed, s.Total())
}

// RetryIngestionHandler queues again an ingestion whose status is RETRY or FAILED (any status but DONE if force)
func (wf *Workflow) RetryIngestionHandler(w http.ResponseWriter, req *http.Request) {
	force := mux.Vars(req)["force"] == "force"
	done, err := wf.RetryIngestion(req.Context(), mux.Vars(req)["id"], force)
	if err != nil {
		writeError(w, req, err)
		return
	}
	if !done {
		w.WriteHeader(204)
		return
	}
	w.WriteHeader(200)
}

// FailIngestionHandler sets the status of the ingestion to FAILED
func (wf *Workflow) FailIngestionHandler(w http.ResponseWriter, req *http.Request) {
	message := "failed by the operator"
	wf.updateStatus(w, req, common.StatusFAILED, &message, false)
}

// ForceIngestionStatusHandler sets the status of the ingestion whatever its current status
func (wf *Workflow) ForceIngestionStatusHandler(w http.ResponseWriter, req *http.Request) {
	status, err := common.StatusString(mux.Vars(req)["status"])
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	wf.updateStatus(w, req, status, nil, true)
}

func (wf *Workflow) updateStatus(w http.ResponseWriter, req *http.Request, status common.Status, message *string, force bool) {
	ctx := req.Context()
	id := mux.Vars(req)["id"]
	if _, err := wf.Ingestion(ctx, id); err != nil {
		writeError(w, req, err)
		return
	}
	done, err := wf.UpdateIngestionStatus(ctx, id, status, message, force)
	if err != nil {
		writeError(w, req, err)
		return
	}
	if !done {
		w.WriteHeader(204)
		return
	}
	w.WriteHeader(200)
}

// GetDatasetHandler retrieves a dataset
func (wf *Workflow) GetDatasetHandler(w http.ResponseWriter, req *http.Request) {
	ds, err := wf.Dataset(req.Context(), mux.Vars(req)["name"])
	if err != nil {
		writeError(w, req, err)
		return
	}
	json.NewEncoder(w).Encode(ds)
}
