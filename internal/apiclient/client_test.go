package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vpnconsole/vpnconsole/internal/apiclient"
	"github.com/vpnconsole/vpnconsole/internal/service"
)

func TestActionRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/service/action" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["action"] != "stop" || req["service"] != "frpc" {
			t.Errorf("request = %v", req)
		}
		_, _ = w.Write([]byte(`{"success":true,"all_succeeded":true,"message":"FRP Client stopped","error":null,"outcomes":[{"service":"frpc","classification":"succeeded","detail":"FRP Client stopped"}]}`))
	}))
	t.Cleanup(srv.Close)

	res, err := apiclient.New(srv.URL).Action(context.Background(), "stop", "frpc")
	if err != nil {
		t.Fatal(err)
	}
	if !res.AllSucceeded || len(res.Outcomes) != 1 || res.Outcomes[0].Classification != service.Succeeded {
		t.Errorf("res = %+v", res)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"invalid service: \"nginx\""}`))
	}))
	t.Cleanup(srv.Close)

	_, err := apiclient.New(srv.URL).Logs(context.Background(), "nginx", 10)
	if err == nil || !strings.Contains(err.Error(), `invalid service: "nginx"`) {
		t.Errorf("err = %v", err)
	}
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	t.Cleanup(srv.Close)

	_, err := apiclient.New(srv.URL).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "405") {
		t.Errorf("err = %v", err)
	}
}

func TestLogsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "lines=50&service=web" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"success":true,"logs":"=== OPENVPN-WEB LOGS ===\nok\n","sections":[]}`))
	}))
	t.Cleanup(srv.Close)

	out, err := apiclient.New(srv.URL + "/").Logs(context.Background(), "web", 50)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.Logs, "=== OPENVPN-WEB LOGS ===") {
		t.Errorf("logs = %q", out.Logs)
	}
}
