package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFailWritesTaggedBody(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthenticated:    http.StatusUnauthorized,
		KindTokenInvalid:       http.StatusForbidden,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindBadRequest:         http.StatusBadRequest,
		KindConflict:           http.StatusConflict,
		KindInvalidCredentials: http.StatusUnauthorized,
		KindRateLimited:        http.StatusTooManyRequests,
		KindInternal:           http.StatusInternalServerError,
	}

	for kind, status := range cases {
		rec := httptest.NewRecorder()
		Fail(context.Background(), rec, kind, "nope")

		if rec.Code != status {
			t.Fatalf("%s: expected status %d got %d", kind, status, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Fatalf("%s: unexpected content type %q", kind, got)
		}

		var body Failure
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", kind, err)
		}
		if body.Success || body.Kind != kind || body.Message != "nope" {
			t.Fatalf("%s: unexpected body %+v", kind, body)
		}
	}
}

func TestWriteJSONSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(context.Background(), rec, http.StatusCreated, OK("done"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	var body Result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Message != "done" {
		t.Fatalf("unexpected body %+v", body)
	}
}
