package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tphummel/rackops/internal/apiclient"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
)

const testToken = "test-api-key"

// newTestServer starts an httptest.Server standing in for the rackops API.
func newTestServer(t *testing.T, handler http.HandlerFunc) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			t.Errorf("auth header: got %q", r.Header.Get("Authorization"))
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return apiclient.NewClient(srv.URL+"/", testToken)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_State(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/state" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"cash": 1234.5, "speed": 2})
	})

	st, err := client.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Cash != 1234.5 || st.Speed != 2 {
		t.Errorf("state: got cash %v speed %v", st.Cash, st.Speed)
	}
}

func TestClient_ListTasks_StatusFilter(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "In Progress" {
			t.Errorf("status query: got %q", got)
		}
		writeJSON(w, http.StatusOK, []models.Task{{ID: "t1", Status: models.TaskInProgress}})
	})

	tasks, err := client.ListTasks(context.Background(), models.TaskInProgress)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("tasks: got %+v", tasks)
	}
}

func TestClient_CreateTask(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tasks" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		var req scheduler.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if req.Template != "install_rack" || req.HardwareID != "rack_std_01" {
			t.Errorf("body: got %+v", req)
		}
		writeJSON(w, http.StatusCreated, models.Task{ID: "t9", Template: req.Template, Status: models.TaskPending})
	})

	task, err := client.CreateTask(context.Background(), scheduler.Request{Template: "install_rack", HardwareID: "rack_std_01"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != "t9" || task.Status != models.TaskPending {
		t.Errorf("task: got %+v", task)
	}
}

func TestClient_CreateTask_ValidationError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "create task: no unreserved rack_std_01 in staging"})
	})

	_, err := client.CreateTask(context.Background(), scheduler.Request{Template: "install_rack"})
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("api error: got %+v", apiErr)
	}
}

func TestClient_AbortTask(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method: got %q, want DELETE", r.Method)
		}
		if r.URL.Path == "/api/v1/tasks/gone" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.AbortTask(context.Background(), "t1"); err != nil {
		t.Errorf("AbortTask: %v", err)
	}
	var apiErr *apiclient.APIError
	if err := client.AbortTask(context.Background(), "gone"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("AbortTask missing: got %v", err)
	}
}

func TestClient_PurchaseAndHire(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/api/v1/purchases":
			if body["hardware_id"] != "srv_web_01" || body["quantity"] != float64(3) {
				t.Errorf("purchase body: got %v", body)
			}
			writeJSON(w, http.StatusCreated, map[string]any{"cash": 100, "inventory": map[string]int{"srv_web_01": 3}})
		case "/api/v1/employees":
			writeJSON(w, http.StatusCreated, models.Employee{ID: "e1", Name: body["name"].(string)})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	p, err := client.Purchase(context.Background(), "srv_web_01", 3)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if p.Inventory["srv_web_01"] != 3 {
		t.Errorf("inventory: got %v", p.Inventory)
	}

	e, err := client.Hire(context.Background(), "Linus", "Hardware Technician")
	if err != nil {
		t.Fatalf("Hire: %v", err)
	}
	if e.Name != "Linus" {
		t.Errorf("employee: got %+v", e)
	}
}

func TestClient_SetClock_OmitsNilFields(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["speed"]; ok {
			t.Errorf("speed should be omitted, body %v", body)
		}
		if body["paused"] != true {
			t.Errorf("paused: got %v", body["paused"])
		}
		writeJSON(w, http.StatusOK, map[string]any{"paused": true, "speed": 1})
	})

	paused := true
	clock, err := client.SetClock(context.Background(), &paused, nil)
	if err != nil {
		t.Fatalf("SetClock: %v", err)
	}
	if !clock.Paused {
		t.Error("expected paused clock")
	}
}

func TestClient_Save(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/save" {
			t.Errorf("request: got %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]string{"session": "default", "status": "saved"})
	})

	id, err := client.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id != "default" {
		t.Errorf("session: got %q, want default", id)
	}
}
