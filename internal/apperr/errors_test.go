package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("no active dataset")
	wrapped := fmt.Errorf("ask: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("missing question", nil), http.StatusBadRequest},
		{"too large", Validation("file too large", ErrPayloadTooLarge), http.StatusRequestEntityTooLarge},
		{"busy", Validation("slot busy", ErrBusy), http.StatusConflict},
		{"query failed", QueryFailed("SELECT x FROM t", errors.New("no such column: x")), http.StatusUnprocessableEntity},
		{"not found", NotFound("nothing uploaded"), http.StatusNotFound},
		{"external", External("llm failed", errors.New("timeout")), http.StatusBadGateway},
		{"parse", Parse("empty file", nil), http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestQueryFailedCarriesSQL(t *testing.T) {
	err := QueryFailed("SELECT nope FROM sales", errors.New("no such column"))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "SELECT nope FROM sales", e.Query)
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.Contains(t, err.Error(), "no such column")
}
