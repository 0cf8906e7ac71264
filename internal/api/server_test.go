package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"go.uber.org/zap"
)

type fakeProvider struct {
	mode       types.GuardianMode
	level      types.MarginLevel
	portfolio  types.PortfolioSnapshot
	rejections []orchestrator.RejectionRecord
	halt       *orchestrator.HaltCause
}

func (f *fakeProvider) GuardianMode() types.GuardianMode                { return f.mode }
func (f *fakeProvider) MarginLevel() types.MarginLevel                  { return f.level }
func (f *fakeProvider) Portfolio() types.PortfolioSnapshot              { return f.portfolio }
func (f *fakeProvider) RecentRejections() []orchestrator.RejectionRecord { return f.rejections }
func (f *fakeProvider) LastHalt() *orchestrator.HaltCause               { return f.halt }

func newTestServer(p Provider) *Server {
	return NewServer(zap.NewNop(), types.DefaultServerConfig(), p)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeProvider{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("status field = %v, want healthy", body["status"])
	}
}

func TestHandleGuardianWithoutHalt(t *testing.T) {
	s := newTestServer(&fakeProvider{mode: types.GuardianModeRunning})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/guardian", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["mode"] != string(types.GuardianModeRunning) {
		t.Fatalf("mode = %v, want %s", body["mode"], types.GuardianModeRunning)
	}
	if _, present := body["last_halt"]; present {
		t.Fatalf("last_halt present with no halt recorded")
	}
}

func TestHandleGuardianWithHalt(t *testing.T) {
	halt := &orchestrator.HaltCause{Reason: "margin critical"}
	s := newTestServer(&fakeProvider{mode: types.GuardianModeHalted, halt: halt})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/guardian", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	lastHalt, ok := body["last_halt"].(map[string]interface{})
	if !ok {
		t.Fatalf("last_halt missing or wrong shape: %v", body["last_halt"])
	}
	if lastHalt["reason"] != "margin critical" {
		t.Fatalf("reason = %v, want %q", lastHalt["reason"], "margin critical")
	}
}

func TestHandleRejections(t *testing.T) {
	recs := []orchestrator.RejectionRecord{{Symbol: "rb2410", Gate: "fat_finger", Reason: "qty too large"}}
	s := newTestServer(&fakeProvider{rejections: recs})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rejections", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body struct {
		Rejections []orchestrator.RejectionRecord `json:"rejections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Rejections) != 1 || body.Rejections[0].Gate != "fat_finger" {
		t.Fatalf("rejections = %+v, want one fat_finger entry", body.Rejections)
	}
}
