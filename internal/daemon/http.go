package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/model"
)

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/balances", s.handleBalances)
	mux.HandleFunc("GET /v1/balances/{id}", s.handleBalance)
	mux.HandleFunc("GET /v1/convert", s.handleConvert)
	mux.HandleFunc("GET /v1/budgets", s.handleBudgets)
	mux.HandleFunc("GET /v1/transfers", s.handleTransfers)
	mux.HandleFunc("GET /v1/outstanding", s.handleOutstanding)
	mux.HandleFunc("GET /v1/networth", s.handleNetWorth)
	mux.HandleFunc("POST /v1/lifecycle", s.handleLifecycle)
	mux.HandleFunc("POST /v1/sync", s.handleSync)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleBalances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Views.Balances())
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bal, err := s.deps.Views.AccountBalance(id)
	if errors.Is(err, aggregate.ErrUnknownAccount) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": bal})
}

type conversion struct {
	Amount    decimal.Decimal  `json:"amount"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Converted *decimal.Decimal `json:"converted,omitempty"`
	Available bool             `json:"available"`
}

func (s *Service) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount: %w", err))
		return
	}
	from, to := strings.ToUpper(q.Get("from")), strings.ToUpper(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, errors.New("from and to are required"))
		return
	}

	res := conversion{Amount: amount, From: from, To: to}
	if v, ok := s.deps.Views.Convert(amount, from, to); ok {
		res.Converted = &v
		res.Available = true
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := model.MonthOf(time.Now())
	if m := q.Get("month"); m != "" {
		parsed, err := model.ParseMonth(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		month = parsed
	}

	cat := q.Get("category")
	if cat == "" {
		writeJSON(w, http.StatusOK, s.deps.Views.RootRollups(month))
		return
	}
	rollup, err := s.deps.Views.EffectiveBudget(cat, month)
	if errors.Is(err, aggregate.ErrUnknownCategory) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (s *Service) handleTransfers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Views.Transfers())
}

func (s *Service) handleOutstanding(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Views.Outstanding())
}

func (s *Service) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Views.NetWorth(strings.ToUpper(r.URL.Query().Get("currency"))))
}

type lifecycleRequest struct {
	State string `json:"state"`
}

func (s *Service) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	switch req.State {
	case "active":
		writeJSON(w, http.StatusOK, map[string]any{"state": req.State, "planned": s.SetActive(true)})
	case "inactive":
		s.SetActive(false)
		writeJSON(w, http.StatusOK, map[string]any{"state": req.State})
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown state %q", req.State))
	}
}

// handleSync queues background syncs: ?kind= may repeat; without it every
// kind is queued.
func (s *Service) handleSync(w http.ResponseWriter, r *http.Request) {
	var kinds []model.Kind
	for _, k := range r.URL.Query()["kind"] {
		kind, err := model.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = model.AllKinds()
	}
	for _, kind := range kinds {
		s.deps.Engine.Request(kind, 0)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": kinds})
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	snap := s.snapshotStatus().Summary
	writeSSE(w, Event{Type: EventSnapshot, Timestamp: time.Now(), Snapshot: &snap})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
