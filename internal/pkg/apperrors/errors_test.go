package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("paymentMethod", "unsupported payment method"), http.StatusBadRequest},
		{"stock", &StockError{Lines: []StockShortfall{{ProductName: "Oni Tee"}}}, http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("order WEB-1: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("transition: %w", ErrConflict), http.StatusConflict},
		{"retryable gateway", &GatewayError{Op: "create session", Err: errors.New("timeout"), Retryable: true}, http.StatusServiceUnavailable},
		{"rejected gateway", &GatewayError{Op: "create session", Err: errors.New("bad amount")}, http.StatusBadGateway},
		{"persistence", &PersistenceError{Op: "create order", Err: errors.New("disk")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestStockError_NamesEveryProduct(t *testing.T) {
	err := &StockError{Lines: []StockShortfall{
		{VariantID: 1, ProductName: "Oni Tee (M / Black)", Requested: 6, Available: 5},
		{VariantID: 2, ProductName: "Kitsune Hoodie (L / Bone)", Requested: 2, Available: 0},
	}}

	assert.Equal(t, "insufficient stock for Oni Tee (M / Black), Kitsune Hoodie (L / Bone)", err.Error())
}

func TestPersistence_KeepsDomainErrors(t *testing.T) {
	ve := Validation("code", "invalid promotion code")
	assert.Same(t, ve, Persistence("create order", ve))

	wrapped := Persistence("create order", errors.New("connection reset"))
	var pe *PersistenceError
	assert.ErrorAs(t, wrapped, &pe)
	assert.Equal(t, "create order", pe.Op)

	assert.Nil(t, Persistence("noop", nil))
}
