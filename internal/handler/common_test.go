package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := map[*service.Error]int{
		service.ErrInvalidQuantity:         http.StatusUnprocessableEntity,
		service.ErrSalesClosed:             http.StatusBadRequest,
		service.ErrInsufficientInventory:   http.StatusConflict,
		service.ErrBookingNotFound:         http.StatusNotFound,
		service.ErrForbidden:               http.StatusForbidden,
		service.ErrPaymentCouldNotComplete: http.StatusBadGateway,
	}
	for e, want := range cases {
		if got := statusFor(e); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", e.Code, got, want)
		}
	}
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{fmt.Errorf("create: %w", service.ErrEventStarted), http.StatusBadRequest, `{"error":"event_started","message":"event has already started"}`},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, `{"error":"timeout"}`},
		{errors.New("connection reset"), http.StatusInternalServerError, `{"error":"test failed"}`},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := respondError(c, "test", tc.err); err != nil {
			t.Fatalf("respondError: %v", err)
		}
		if rec.Code != tc.status {
			t.Errorf("%v: status %d, want %d", tc.err, rec.Code, tc.status)
		}
		if got := rec.Body.String(); got != tc.body+"\n" {
			t.Errorf("%v: body %s, want %s", tc.err, got, tc.body)
		}
	}
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	for _, tc := range []struct {
		db     Pinger
		status int
	}{
		{nil, http.StatusOK},
		{failingPinger{}, http.StatusOK},
		{failingPinger{errors.New("down")}, http.StatusServiceUnavailable},
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
		if err := Health(tc.db)(c); err != nil {
			t.Fatalf("Health: %v", err)
		}
		if rec.Code != tc.status {
			t.Errorf("status %d, want %d", rec.Code, tc.status)
		}
	}
}

func TestPathID(t *testing.T) {
	e := echo.New()
	for raw, want := range map[string]bool{"12": true, "0": false, "-1": false, "x": false, "": false} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(raw)
		if _, ok := pathID(c, "id"); ok != want {
			t.Errorf("pathID(%q) ok = %v", raw, ok)
		}
	}
}
