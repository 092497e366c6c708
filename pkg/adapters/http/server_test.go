package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake"
	httpadapter "github.com/aretw0/intake/pkg/adapters/http"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/demo"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

type downProvider struct{}

func (downProvider) Lookup(context.Context, string, domain.Value) (domain.Record, error) {
	return nil, errors.New("provider down")
}

func newHandler(t *testing.T, opts ...httpadapter.Option) http.Handler {
	t.Helper()
	patients, err := demo.Patients()
	require.NoError(t, err)
	return newHandlerFor(t, memory.NewProvider(patients), opts...)
}

func newHandlerFor(t *testing.T, provider ports.RecordProvider, opts ...httpadapter.Option) http.Handler {
	t.Helper()
	eng, err := intake.New(demo.MustSchema(),
		intake.WithProvider(provider),
		intake.WithClock(func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	n := 0
	svc := intake.NewService(eng, memory.NewStore(), intake.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	}))
	return httpadapter.NewHandler(svc, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeStep(t *testing.T, w *httptest.ResponseRecorder) domain.Step {
	t.Helper()
	var step domain.Step
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step), w.Body.String())
	return step
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpadapter.ErrorResponse {
	t.Helper()
	var resp httpadapter.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestServer_Dialogue(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	step := decodeStep(t, w)
	assert.Equal(t, "sess-1", step.SessionID)
	assert.Equal(t, "patient_name", step.Action.Slot)

	for _, a := range [][2]string{{"patient_name", "Jane Roe"}, {"patient_id", "13345"}, {"patient_dob", "2005-06-15"}} {
		w = do(t, h, http.MethodPost, "/sessions/sess-1/slots/"+a[0], httpadapter.IngestRequest{Value: a[1]})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	step = decodeStep(t, w)
	assert.Equal(t, domain.ActionLookup, step.Action.Kind)

	w = do(t, h, http.MethodPost, "/sessions/sess-1/lookup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	step = decodeStep(t, w)
	require.NotNil(t, step.Lookup)
	assert.True(t, step.Lookup.Found)
	assert.Equal(t, "Returning Patient", step.Action.Child)

	// JSON booleans are accepted as-is.
	w = do(t, h, http.MethodPost, "/sessions/sess-1/slots/has_reports", httpadapter.IngestRequest{Value: true})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.DialogueState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "HealthPlus", st.Slots["insurance"].Value)
	assert.Equal(t, true, st.Slots["has_reports"].Value)

	w = do(t, h, http.MethodGet, "/sessions", nil)
	assert.JSONEq(t, `{"sessions":["sess-1"]}`, w.Body.String())

	w = do(t, h, http.MethodDelete, "/sessions/sess-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodPost, "/sessions/sess-1/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_SkipLookupAfterFailure(t *testing.T) {
	h := newHandlerFor(t, downProvider{})
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", nil).Code)
	for _, a := range [][2]string{{"patient_name", "Jane Roe"}, {"patient_id", "13345"}, {"patient_dob", "2005-06-15"}} {
		w := do(t, h, http.MethodPost, "/sessions/sess-1/slots/"+a[0], httpadapter.IngestRequest{Value: a[1]})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodPost, "/sessions/sess-1/lookup", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "lookup_failed", decodeError(t, w).Code)

	w = do(t, h, http.MethodPost, "/sessions/sess-1/lookup/skip", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	step := decodeStep(t, w)
	require.NotNil(t, step.Lookup)
	assert.True(t, step.Lookup.Abandoned)
	assert.False(t, step.Lookup.Found)
	assert.Equal(t, domain.ActionDescend, step.Action.Kind)
	assert.Equal(t, "New Patient", step.Action.Child)

	w = do(t, h, http.MethodPost, "/sessions/sess-1/next", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	step = decodeStep(t, w)
	assert.Equal(t, "insurance", step.Action.Slot)
}

func TestServer_Errors(t *testing.T) {
	h := newHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", nil).Code)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"validation", "/sessions/sess-1/slots/patient_id", httpadapter.IngestRequest{Value: "abc"}, http.StatusUnprocessableEntity, "validation_failed"},
		{"unknown slot", "/sessions/sess-1/slots/nope", httpadapter.IngestRequest{Value: "x"}, http.StatusNotFound, "unknown_slot"},
		{"missing input", "/sessions/sess-1/slots/patient_name", httpadapter.IngestRequest{}, http.StatusBadRequest, "missing_input"},
		{"lookup key unresolved", "/sessions/sess-1/lookup", nil, http.StatusConflict, "lookup_key_unresolved"},
		{"unknown session", "/sessions/nope/next", nil, http.StatusNotFound, "session_not_found"},
		{"input too large", "/sessions/sess-1/slots/patient_name", httpadapter.IngestRequest{Value: strings.Repeat("a", 5000)}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}

	w := do(t, h, http.MethodPost, "/sessions/sess-1/slots/patient_id", httpadapter.IngestRequest{Value: "abc"})
	resp := decodeError(t, w)
	assert.Equal(t, "patient_id", resp.Slot)
	assert.Equal(t, "Patient ID must be 1–10 digits.", resp.Error)
}

func TestServer_HealthInfoMetrics(t *testing.T) {
	h := newHandler(t, httpadapter.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "intake_lookups_total 0")
	})))

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", nil)
	assert.Contains(t, w.Body.String(), strings.TrimSpace(intake.Version))

	w = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, "intake_lookups_total 0", w.Body.String())

	w = do(t, h, http.MethodOptions, "/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents_Session(t *testing.T) {
	srv := httptest.NewServer(newHandler(t))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	// 1. Subscribe
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/sess-1/events?watch=resolved", nil)
	require.NoError(t, err)
	sub, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()
	assert.Equal(t, "text/event-stream", sub.Header.Get("Content-Type"))

	lines := bufio.NewScanner(sub.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	// 2. Trigger Ingest
	resp, err = http.Post(srv.URL+"/sessions/sess-1/slots/patient_name", "application/json", strings.NewReader(`{"value":"Jane Roe"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 3. Expect the diff
	var got string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			got = lines.Text()
			break
		}
	}
	assert.Contains(t, got, `"patient_name"`)
	assert.Contains(t, got, `"Jane Roe"`)
}

func TestSubscribeEvents_UnknownSession(t *testing.T) {
	w := do(t, newHandler(t), http.MethodGet, "/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
