// Package api exposes HTTP handlers for the healthtrack service.
package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"example.com/healthtrack/internal/auth"
	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/patients/{patientID}/metrics/{metric}", h.logMetric)
	mux.HandleFunc("PUT /v1/patients/{patientID}/goals/{metric}", h.setGoal)
	mux.HandleFunc("GET /v1/patients/{patientID}/reports/{metric}", h.report)

	mux.HandleFunc("POST /v1/patients/{patientID}/sleep", h.logSleep)
	mux.HandleFunc("GET /v1/patients/{patientID}/sleep", h.sleepHistory)
	mux.HandleFunc("DELETE /v1/patients/{patientID}/sleep/{bucketID}", h.clearSleep)

	mux.HandleFunc("GET /v1/patients/{patientID}/heart-rate/latest", h.latestHeartRate)
	mux.HandleFunc("GET /v1/patients/{patientID}/days", h.dailySummaries)
	mux.HandleFunc("PUT /v1/patients/{patientID}/days/{date}", h.resolveDay)

	mux.HandleFunc("POST /v1/patients/{patientID}/medications", h.addMedication)
	mux.HandleFunc("GET /v1/patients/{patientID}/medications", h.listMedications)
	mux.HandleFunc("PUT /v1/patients/{patientID}/medications/{medicationID}/completions/{date}", h.setCompletion)

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize checks the bearer's scope and that it may act for the patient in the path.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, write bool) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if write && !claims.CanWrite() {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeHealthWrite+" required")
		return "", false
	}
	if !write && !claims.CanRead() {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeHealthRead+" required")
		return "", false
	}
	patientID := r.PathValue("patientID")
	if !claims.CanAccessPatient(patientID) {
		writeError(w, http.StatusForbidden, "forbidden", "not permitted for this patient")
		return "", false
	}
	return patientID, true
}

func (h *Handler) logMetric(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	metric, err := domain.ParseMetric(r.PathValue("metric"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req LogMetricRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toInput(metric)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	bucket, err := h.service.LogMetric(r.Context(), patientID, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketView(*bucket))
}

func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	metric, err := domain.ParseMetric(r.PathValue("metric"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req SetGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "goal is required")
		return
	}

	bucket, err := h.service.SetGoal(r.Context(), patientID, metric, *req.Goal)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketView(*bucket))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, false)
	if !ok {
		return
	}
	metric, err := domain.ParseMetric(r.PathValue("metric"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var opts domain.ReportOptions
	query := r.URL.Query()
	if raw := query.Get("window"); raw != "" {
		window, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "window must be an integer")
			return
		}
		opts.WindowDays = window
	}
	if opts.ReferenceDay, ok = parseOptionalDate(w, query.Get("reference"), "reference"); !ok {
		return
	}

	report, err := h.service.BuildReport(r.Context(), patientID, metric, opts)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportView(*report))
}

func (h *Handler) logSleep(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}

	var req LogSleepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	day, ok := parseOptionalDate(w, req.Date, "date")
	if !ok {
		return
	}

	entry, err := h.service.LogSleep(r.Context(), patientID, domain.SleepInput{Day: day, Start: req.Start, End: req.End})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSleepView(*entry))
}

func (h *Handler) sleepHistory(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, false)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "invalid cursor")
		return
	}

	entries, next, err := h.service.SleepHistory(r.Context(), patientID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := SleepHistoryResponse{
		Items:      make([]SleepView, 0, len(entries)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, entry := range entries {
		resp.Items = append(resp.Items, toSleepView(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) clearSleep(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	bucket, err := h.service.ClearSleep(r.Context(), patientID, r.PathValue("bucketID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketView(*bucket))
}

func (h *Handler) latestHeartRate(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, false)
	if !ok {
		return
	}
	reading, err := h.service.LatestHeartRate(r.Context(), patientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HeartRateView{
		BucketID: reading.BucketID,
		DayKey:   daykey.Format(reading.DayKey),
		Weekday:  reading.Weekday,
		Value:    reading.Value,
	})
}

func (h *Handler) dailySummaries(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, false)
	if !ok {
		return
	}
	query := r.URL.Query()
	from, ok := parseOptionalDate(w, query.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, query.Get("to"), "to")
	if !ok {
		return
	}

	buckets, err := h.service.DailySummaries(r.Context(), patientID, from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := DailySummariesResponse{Items: make([]BucketView, 0, len(buckets))}
	for _, b := range buckets {
		resp.Items = append(resp.Items, toBucketView(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resolveDay(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	day, err := daykey.Parse(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), err.Error())
		return
	}
	bucket, err := h.service.ResolveBucket(r.Context(), patientID, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketView(*bucket))
}

func (h *Handler) addMedication(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}

	var req AddMedicationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	med, err := h.service.AddMedication(r.Context(), patientID, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicationView(domain.MedicationView{
		Medication:                *med,
		CompletedWeekdays:         domain.CompletedWeekdays(med.CompletedDates),
		FullyCompletedForSchedule: domain.FullyCompleted(med.Recurrence, med.CompletedDates),
	}))
}

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, false)
	if !ok {
		return
	}

	var rng domain.DateRange
	query := r.URL.Query()
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		day, ok := parseOptionalDate(w, query.Get(bound.name), bound.name)
		if !ok {
			return
		}
		if !day.IsZero() {
			*bound.dst = &day
		}
	}

	list, err := h.service.ListMedications(r.Context(), patientID, rng)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := ListMedicationsResponse{
		Active: make([]MedicationView, 0, len(list.Active)),
		Past:   make([]MedicationView, 0, len(list.Past)),
	}
	for _, m := range list.Active {
		resp.Active = append(resp.Active, toMedicationView(m))
	}
	for _, m := range list.Past {
		resp.Past = append(resp.Past, toMedicationView(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setCompletion(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	date, err := daykey.Parse(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), err.Error())
		return
	}

	var req SetCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Completed == nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "completed is required")
		return
	}

	view, err := h.service.SetCompletion(r.Context(), patientID, r.PathValue("medicationID"), date, *req.Completed)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationView(*view))
}
