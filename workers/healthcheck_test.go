package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func checkClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		isLive  bool
	}{
		{
			"ok",
			func(w http.ResponseWriter, r *http.Request) {},
			true,
		},
		{
			"gone",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) },
			false,
		},
		{
			"redirect to catalog",
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "https://spb.cian.ru/kupit-kvartiru/")
				w.WriteHeader(302)
			},
			false,
		},
		{
			"redirect elsewhere",
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "https://spb.cian.ru/sale/flat/123/")
				w.WriteHeader(301)
			},
			true,
		},
		{
			"blocked is not gone",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(429) },
			true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()

			w := NewHealthcheckWorker(nil, nil, checkClient(), "test-agent")
			result := w.Check(context.Background(), srv.URL)
			if result.Error != nil {
				t.Fatalf("check error: %v", result.Error)
			}
			if result.IsLive != c.isLive {
				t.Fatalf("isLive = %v (status %d), want %v", result.IsLive, result.StatusCode, c.isLive)
			}
		})
	}
}

func TestIsDelistRedirect(t *testing.T) {
	delisting := []string{
		"https://spb.cian.ru/kupit-kvartiru/",
		"https://spb.cian.ru/snyat-kvartiru/",
		"https://www.cian.ru/cat.php?deal_type=sale",
		"/notfound",
	}
	for _, loc := range delisting {
		if !isDelistRedirect(loc) {
			t.Errorf("%s should count as a delist redirect", loc)
		}
	}

	if isDelistRedirect("https://spb.cian.ru/sale/flat/316035283/") {
		t.Error("a listing URL is not a delist redirect")
	}
}
