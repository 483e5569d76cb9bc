package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tagwatch/console-sync/internal/model"
)

func TestDeviceEventsSendsTokenAndLimit(t *testing.T) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/devices/cam-1/events" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "30" {
			t.Errorf("limit = %q, want 30", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":7,"device_id":"cam-1","topic":"site/cam-1/events","analytic_type":"faceRecognized","created_at":"2026-01-02T03:04:05Z"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api/", time.Second, StaticToken("abc"))
	events, err := client.DeviceEvents(context.Background(), "cam-1", 30)
	if err != nil {
		t.Fatalf("DeviceEvents() error: %v", err)
	}
	if len(events) != 1 || events[0].ID != 7 || events[0].AnalyticType != "faceRecognized" {
		t.Fatalf("events = %+v", events)
	}
}

func TestIncidentMessagesCursor(t *testing.T) {
	t.Helper()

	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	if _, err := client.IncidentMessages(context.Background(), 5, 300, nil); err != nil {
		t.Fatalf("initial fetch error: %v", err)
	}
	after := int64(41)
	if _, err := client.IncidentMessages(context.Background(), 5, 300, &after); err != nil {
		t.Fatalf("incremental fetch error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "limit=300" || seen[1] != "after_id=41&limit=300" {
		t.Fatalf("queries = %v", seen)
	}
}

func TestErrorEnvelopeDetail(t *testing.T) {
	t.Helper()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "string detail", status: http.StatusBadRequest, body: `{"detail":"title is required"}`, want: "title is required"},
		{name: "validation list", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","title"],"msg":"field required"}]}`, want: "body.title: field required"},
		{name: "plain body", status: http.StatusBadGateway, body: `upstream down`, want: "upstream down"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second, nil)
			_, err := client.CreateIncident(context.Background(), model.NewIncident{Title: "x"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Detail != tc.want {
				t.Fatalf("APIError = %+v, want status %d detail %q", apiErr, tc.status, tc.want)
			}
		})
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, StaticToken("stale"))
	_, err := client.ListGateways(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSendMessagePostsJSON(t *testing.T) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/incidents/3/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var in model.NewMessage
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(model.IncidentMessage{ID: 99, IncidentID: 3, Type: in.Type, Content: in.Content})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	msg, err := client.SendMessage(context.Background(), 3, model.NewMessage{Type: model.MessageTypeComment, Content: "on my way"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.ID != 99 || msg.Content != "on my way" {
		t.Fatalf("message = %+v", msg)
	}
}
