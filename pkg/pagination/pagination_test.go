package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(q string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+q, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextWithQuery(""))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"limit=5&offset=10", 5, 10},
		{"limit=1000", MaxLimit, 0},
		{"limit=-3&offset=-1", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := FromContext(contextWithQuery(tt.query))
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%q: expected (%d,%d), got (%d,%d)", tt.query, tt.limit, tt.offset, p.Limit, p.Offset)
		}
	}
}

func TestBounds(t *testing.T) {
	tests := []struct {
		limit, offset, n int
		start, end       int
	}{
		{10, 0, 25, 0, 10},
		{10, 20, 25, 20, 25},
		{10, 30, 25, 25, 25},
		{0, 5, 25, 5, 25},
		{10, -4, 25, 0, 10},
		{10, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		start, end := Bounds(tt.limit, tt.offset, tt.n)
		if start != tt.start || end != tt.end {
			t.Errorf("Bounds(%d,%d,%d) = (%d,%d), want (%d,%d)", tt.limit, tt.offset, tt.n, start, end, tt.start, tt.end)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 25, 10, 10).HasMore {
		t.Error("expected more results after offset 10")
	}
	if NewResponse(nil, 25, 10, 20).HasMore {
		t.Error("expected no more results after offset 20")
	}
}

func TestLinks(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	links := p.Links("/api/v1/evolution/patients", url.Values{"q": {"ana"}, "offset": {"10"}}, 25)

	want := map[string]string{
		"self":     "/api/v1/evolution/patients?limit=10&offset=10&q=ana",
		"next":     "/api/v1/evolution/patients?limit=10&offset=20&q=ana",
		"previous": "/api/v1/evolution/patients?limit=10&offset=0&q=ana",
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d", len(want), len(links))
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s: expected %s, got %s", l.Relation, want[l.Relation], l.URL)
		}
	}
}

func TestLinks_FirstAndLastPage(t *testing.T) {
	links := Params{Limit: 10, Offset: 0}.Links("/p", nil, 5)
	if len(links) != 1 || links[0].Relation != "self" {
		t.Errorf("expected only a self link, got %v", links)
	}
}
