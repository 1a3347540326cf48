package contagionsdk

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
)

func newStub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return New("http://" + ln.Addr().String() + "/")
}

func TestClientRequests(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.RequestURI())
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v0/runs":
			io.WriteString(w, `{"items":[{"id":"r1","scenario":"town","seed":18446744073709551615,"status":"completed"}],"next_cursor":"c"}`)
		case "/v0/runs/r1":
			io.WriteString(w, `{"id":"r1","status":"completed","artifacts":[{"name":"report.txt","location":"/x"}]}`)
		case "/v0/runs/r1/series":
			io.WriteString(w, `{"items":[{"observer":"daily","minute":1440,"has_been_infected":4}]}`)
		case "/v0/runs/r1/people":
			io.WriteString(w, `{"items":[{"person_id":3,"quarantined":true}]}`)
		case "/v0/runs/r1/events":
			io.WriteString(w, `{"items":[{"id":9,"type":"run.completed","payload":{"dead":1}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":"not_found"}}`)
		}
	})
	c.BearerToken = "tok"
	ctx := context.Background()

	page, err := c.ListRuns(ctx, RunFilter{Status: "completed", Limit: 5})
	if err != nil || len(page.Items) != 1 || page.Items[0].Seed != 18446744073709551615 || page.NextCursor != "c" {
		t.Fatalf("list runs: %+v %v", page, err)
	}
	detail, err := c.GetRun(ctx, "r1")
	if err != nil || detail.ID != "r1" || len(detail.Artifacts) != 1 {
		t.Fatalf("get run: %+v %v", detail, err)
	}
	series, err := c.Series(ctx, "r1", "", "people")
	if err != nil || len(series) != 1 || series[0].HasBeenInfected != 4 {
		t.Fatalf("series: %+v %v", series, err)
	}
	people, err := c.People(ctx, "r1", "daily", -1, 10)
	if err != nil || len(people) != 1 || !people[0].Quarantined {
		t.Fatalf("people: %+v %v", people, err)
	}
	evts, err := c.Events(ctx, "r1", 0, "")
	if err != nil || len(evts.Items) != 1 || evts.Items[0].Payload["dead"] != float64(1) {
		t.Fatalf("events: %+v %v", evts, err)
	}

	want := []string{
		"/v0/runs?limit=5&status=completed",
		"/v0/runs/r1",
		"/v0/runs/r1/series?scope=people",
		"/v0/runs/r1/people?limit=10&observer=daily",
		"/v0/runs/r1/events",
	}
	mu.Lock()
	got := append([]string(nil), seen...)
	mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("unexpected requests %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("request %d = %s, want %s", i, got[i], want[i])
		}
	}

	_, err = c.GetRun(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected a 404 APIError, got %v", err)
	}
}
