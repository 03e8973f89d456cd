package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/useraccounts/user-accounts/internal/core/domain"
)

func TestStrictJSONSerializer(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	cases := map[string]struct {
		body  string
		field string // expected ValidationError field, empty for success
		http  bool   // expect a plain HTTPError
	}{
		"known fields":  {body: `{"name":"a","age":3}`},
		"unknown field": {body: `{"name":"a","isAdmin":true}`, field: "isAdmin"},
		"wrong type":    {body: `{"age":"three"}`, field: "age"},
		"syntax error":  {body: `{"name":`, http: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			c := e.NewContext(req, httptest.NewRecorder())

			var p payload
			err := StrictJSONSerializer{}.Deserialize(c, &p)

			switch {
			case tc.field != "":
				var ve *domain.ValidationError
				if !errors.As(err, &ve) || ve.Fields[0].Field != tc.field {
					t.Fatalf("expected ValidationError on %q, got %v", tc.field, err)
				}
			case tc.http:
				var he *echo.HTTPError
				if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
					t.Fatalf("expected 400 HTTPError, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Name != "a" || p.Age != 3 {
					t.Fatalf("unexpected decode: %+v", p)
				}
			}
		})
	}
}

func TestPathID(t *testing.T) {
	e := echo.New()
	for value, ok := range map[string]bool{"1": true, "42": true, "0": false, "-3": false, "x": false, "": false} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(value)

		_, err := pathID(c)
		if (err == nil) != ok {
			t.Fatalf("pathID(%q): ok=%v err=%v", value, ok, err)
		}
	}
}
