package dj_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/picatz/dnsprobe/pkg/dj"
)

const answeredBody = `{"Status":0,"TC":false,"RD":true,"RA":true,"AD":false,"CD":false,
"Question":[{"name":"google.com.","type":1}],
"Answer":[{"name":"google.com.","type":1,"TTL":300,"data":"142.250.72.14"}]}`

const unansweredBody = `{"Status":3,"TC":false,"RD":true,"RA":true,"AD":false,"CD":false,
"Question":[{"name":"nope.invalid.","type":1}]}`

func TestQuery(t *testing.T) {
	client := cleanhttp.DefaultClient()

	tests := []struct {
		name    string
		req     *dj.Request
		handler http.HandlerFunc
		check   func(t *testing.T, query url.Values, resp *dj.Response, err error)
	}{
		{
			name: "answered",
			req:  &dj.Request{Name: "google.com", Type: "A"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", dj.ContentType)
				fmt.Fprint(w, answeredBody)
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				if err != nil {
					t.Fatal(err)
				}

				if !resp.Answered() {
					t.Error("got no answer for known domain")
				}

				if query.Get("name") != "google.com" || query.Get("type") != "A" {
					t.Errorf("got query %v, want name and type", query)
				}
			},
		},
		{
			name: "no answer key",
			req:  &dj.Request{Name: "nope.invalid", Type: "A"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, unansweredBody)
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				if err != nil {
					t.Fatal(err)
				}

				if resp.Answered() {
					t.Error("got answer for unknown domain")
				}

				if resp.Status != 3 {
					t.Errorf("got status %d, want 3", resp.Status)
				}
			},
		},
		{
			name: "dns param shape",
			req:  &dj.Request{Name: "google.com", Type: "A", Shape: dj.ShapeDNSParam},
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, answeredBody)
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				if err != nil {
					t.Fatal(err)
				}

				if query.Get("dns") != "google.com" {
					t.Errorf("got dns param %q, want %q", query.Get("dns"), "google.com")
				}

				if query.Has("name") || query.Has("type") {
					t.Errorf("got unexpected name/type params in %v", query)
				}
			},
		},
		{
			name: "type defaults to A",
			req:  &dj.Request{Name: "google.com"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, answeredBody)
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				if err != nil {
					t.Fatal(err)
				}

				if query.Get("type") != "A" {
					t.Errorf("got type %q, want A", query.Get("type"))
				}
			},
		},
		{
			name: "invalid json",
			req:  &dj.Request{Name: "google.com", Type: "A"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>not json</html>")
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				if err == nil {
					t.Fatal("expected error for invalid JSON")
				}
			},
		},
		{
			name: "server error",
			req:  &dj.Request{Name: "google.com", Type: "A"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, query url.Values, resp *dj.Response, err error) {
				var statusErr *dj.StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("got error %v, want *dj.StatusError", err)
				}

				if statusErr.Code != http.StatusServiceUnavailable {
					t.Errorf("got status code %d, want %d", statusErr.Code, http.StatusServiceUnavailable)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var (
				query  url.Values
				accept string
			)

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				query = r.URL.Query()
				accept = r.Header.Get("Accept")
				test.handler(w, r)
			}))
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			resp, err := dj.Query(ctx, client, server.URL+"/resolve", test.req)

			if accept != dj.ContentType {
				t.Errorf("got accept header %q, want %q", accept, dj.ContentType)
			}

			test.check(t, query, resp, err)
		})
	}
}

func TestParseShape(t *testing.T) {
	for _, shape := range []dj.Shape{dj.ShapeNameType, dj.ShapeDNSParam} {
		got, err := dj.ParseShape(shape.String())
		if err != nil {
			t.Fatal(err)
		}

		if got != shape {
			t.Errorf("got shape %v, want %v", got, shape)
		}
	}

	if _, err := dj.ParseShape("base64"); err == nil {
		t.Error("expected error for unknown shape")
	}
}
