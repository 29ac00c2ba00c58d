package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/kitchenwatch/internal/alert"
)

type fakeAlerts struct {
	status alert.Status
	acks   int
}

func (f *fakeAlerts) Status() alert.Status { return f.status }
func (f *fakeAlerts) Acknowledge()         { f.acks++ }

func TestAlertHandler_Status(t *testing.T) {
	f := &fakeAlerts{status: alert.Status{
		State: alert.Alerted.String(),
		Alert: &alert.Alert{ID: "a-1", Title: "ALARM"},
	}}
	handler := NewAlertHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/alert", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got alert.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.State != "alerted" || got.Alert == nil || got.Alert.ID != "a-1" {
		t.Errorf("unexpected status: %+v", got)
	}
}

func TestAlertHandler_Acknowledge(t *testing.T) {
	tests := []struct {
		name     string
		state    alert.State
		wantCode int
		wantAcks int
	}{
		{"alerted", alert.Alerted, http.StatusAccepted, 1},
		{"idle", alert.Idle, http.StatusConflict, 0},
		{"already acknowledged", alert.Acknowledged, http.StatusConflict, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAlerts{status: alert.Status{State: tt.state.String()}}
			handler := NewAlertHandler(f)

			req := httptest.NewRequest(http.MethodPost, "/api/alert/ack", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if f.acks != tt.wantAcks {
				t.Errorf("expected %d acknowledgments, got %d", tt.wantAcks, f.acks)
			}
		})
	}
}

func TestAlertHandler_Methods(t *testing.T) {
	handler := NewAlertHandler(&fakeAlerts{})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/api/alert", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/alert/ack", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/alert/bogus", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}
