package explorador

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

var testQuery = Query{
	StationID: "10111001",
	Start:     time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
	End:       time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
}

const testCSV = "fecha,caudal\n1961-01-01,12.5\n"

func TestRequestURL(t *testing.T) {
	c := NewClient()
	raw, err := c.RequestURL(testQuery)
	if err != nil {
		t.Fatalf("RequestURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/request.php" {
		t.Errorf("path = %q, want /request.php", u.Path)
	}

	var opts map[string]any
	if err := json.Unmarshal([]byte(u.Query().Get("options")), &opts); err != nil {
		t.Fatalf("options parameter is not JSON: %v", err)
	}
	variable := opts["variable"].(map[string]any)
	if variable["id"] != "qflxDaily" || variable["stat"] != "mean" {
		t.Errorf("variable = %v, want daily mean streamflow", variable)
	}
	sites := opts["series"].(map[string]any)["sites"].([]any)
	if len(sites) != 1 || sites[0] != "10111001" {
		t.Errorf("sites = %v, want [10111001]", sites)
	}
	if opts["export"].(map[string]any)["series"] != "CSV" {
		t.Error("export.series must request CSV")
	}
	tm := opts["time"].(map[string]any)
	if int64(tm["start"].(float64)) != testQuery.Start.Unix() {
		t.Errorf("time.start = %v, want %d", tm["start"], testQuery.Start.Unix())
	}
}

func TestFetchDirectPayload(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, testCSV)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload.Data) != testCSV {
		t.Errorf("payload = %q", payload.Data)
	}
	if payload.ContentType != "text/csv" {
		t.Errorf("content type = %q", payload.ContentType)
	}

	for _, h := range []string{"Accept", "Referer", "User-Agent", "X-Requested-With"} {
		if gotHeaders.Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
	if gotHeaders.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", gotHeaders.Get("X-Requested-With"))
	}
}

func TestFetchEnvelopeIndirection(t *testing.T) {
	downloads := 0
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/request.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"export":{"series":{"url":"%s/download/series.csv"}}}`, srv.URL)
	})
	mux.HandleFunc("/download/series.csv", func(w http.ResponseWriter, r *http.Request) {
		downloads++
		if r.Header.Get("User-Agent") == "" {
			t.Error("second hop must carry the same header profile")
		}
		fmt.Fprint(w, testCSV)
	})

	c := NewClient(WithBaseURL(srv.URL))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload.Data) != testCSV {
		t.Errorf("payload = %q, want dereferenced file body", payload.Data)
	}
	if downloads != 1 {
		t.Errorf("downloads = %d, want exactly one second hop", downloads)
	}
}

func TestFetchEnvelopeSeriesAsString(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/request.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"export":{"series":"%s/d.csv"}}`, srv.URL)
	})
	mux.HandleFunc("/d.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testCSV)
	})

	c := NewClient(WithBaseURL(srv.URL))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload.Data) != testCSV {
		t.Errorf("payload = %q", payload.Data)
	}
}

func TestFetchEnvelopeMapFallback(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/request.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"export":{"map":{"url":"%s/map.csv"}}}`, srv.URL)
	})
	mux.HandleFunc("/map.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "longitud,latitud,valor\n-72.5,-39.8,104.2\n")
	})

	c := NewClient(WithBaseURL(srv.URL))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(string(payload.Data), "longitud") {
		t.Errorf("payload = %q, want map export", payload.Data)
	}
}

func TestFetchEnvelopeWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"export":{}}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), testQuery)
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("err = %v, want ErrUpstreamRejected", err)
	}
}

func TestFetchHTMLErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<!DOCTYPE html><html><head><title>Acceso denegado</title></head><body>no</body></html>")
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), testQuery)
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("err = %v, want ErrUpstreamRejected", err)
	}
	if !strings.Contains(err.Error(), "Acceso denegado") {
		t.Errorf("error should carry the page title, got %v", err)
	}
}

func TestFetchHTMLErrorPageWithLeadingComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<!-- mantenimiento --><div>Servicio no disponible</div>")
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), testQuery)
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("err = %v, want ErrUpstreamRejected", err)
	}
}

func TestFetchCSVMislabeledAsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, testCSV)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload.Data) != testCSV {
		t.Errorf("payload = %q, want CSV despite the content type", payload.Data)
	}
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), testQuery)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", se.StatusCode)
	}
}

func TestFetchNon200OnSecondHop(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/request.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"export":{"series":{"url":"%s/gone.csv"}}}`, srv.URL)
	})
	mux.HandleFunc("/gone.csv", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), testQuery)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", se.StatusCode)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, testCSV)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := c.Fetch(context.Background(), testQuery)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestFetchDownloadTimeoutIsSeparate(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/request.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"export":{"series":{"url":"%s/slow.csv"}}}`, srv.URL)
	})
	mux.HandleFunc("/slow.csv", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, testCSV)
	})

	// A query timeout too short for the download must not cut the second
	// hop off; the download runs under its own budget.
	c := NewClient(WithBaseURL(srv.URL),
		WithTimeout(50*time.Millisecond),
		WithDownloadTimeout(2*time.Second))
	payload, err := c.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload.Data) != testCSV {
		t.Errorf("payload = %q", payload.Data)
	}

	c = NewClient(WithBaseURL(srv.URL),
		WithTimeout(2*time.Second),
		WithDownloadTimeout(20*time.Millisecond))
	_, err = c.Fetch(context.Background(), testQuery)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout on the download hop", err)
	}
}
