package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRequestAcceptsRegisterCashForm(t *testing.T) {
	payload := `{"tx_id":"6f1c","tender":80,"items":[{"id":1,"quantity":2}],"method":"Cash"}`

	var req TransactionRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	assert.Equal(t, PaymentCash, req.Method.Kind)
	assert.Nil(t, req.Method.Tender)
	assert.Equal(t, int64(80), req.TenderAmount())
	assert.Equal(t, Basket{1: 2}, NewBasket(req.Items))
}

func TestTransactionRequestNestedTenderWins(t *testing.T) {
	payload := `{"tx_id":"6f1c","tender":5,"items":[],"method":{"Cash":{"tender":120}}}`

	var req TransactionRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, int64(120), req.TenderAmount())
}

func TestPaymentMethodCredit(t *testing.T) {
	var method PaymentMethod
	require.NoError(t, json.Unmarshal([]byte(`{"Credit":{"account_id":42}}`), &method))
	assert.Equal(t, CreditPayment(42), method)

	encoded, err := json.Marshal(method)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Credit":{"account_id":42}}`, string(encoded))
}

func TestPaymentMethodRejectsUnknownVariants(t *testing.T) {
	cases := []string{
		`"Card"`,
		`{"Voucher":{"code":"x"}}`,
		`{"Credit":{}}`,
		`{"Cash":{"tender":1},"Credit":{"account_id":1}}`,
	}
	for _, raw := range cases {
		var method PaymentMethod
		assert.Error(t, json.Unmarshal([]byte(raw), &method), raw)
	}
}

func TestOutcomeWireFormat(t *testing.T) {
	cases := map[string]Outcome{
		`{"Success":{"cash_back":20}}`:                 Success(20),
		`{"Partial":{"remaining":120}}`:                Partial(120),
		`{"InvalidAccount":{"account_id":7}}`:          InvalidAccount(7),
		`{"Failure":{"reason":"Insufficient Credit"}}`: Failure(ReasonInsufficientCredit),
	}
	for wire, outcome := range cases {
		encoded, err := json.Marshal(outcome)
		require.NoError(t, err)
		assert.JSONEq(t, wire, string(encoded))

		var decoded Outcome
		require.NoError(t, json.Unmarshal([]byte(wire), &decoded))
		assert.Equal(t, outcome, decoded)
	}
}

func TestBasketSumsRepeatedIDsAndSerializesSorted(t *testing.T) {
	basket := NewBasket([]BasketEntry{{ID: 9, Quantity: 1}, {ID: 2, Quantity: 3}, {ID: 9, Quantity: 2}})
	assert.Equal(t, Basket{2: 3, 9: 3}, basket)

	encoded, err := json.Marshal(basket)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":2,"quantity":3},{"id":9,"quantity":3}]`, string(encoded))
}

func TestAccountValidateDiscountRange(t *testing.T) {
	assert.NoError(t, Account{ID: 1, Discount: 0}.Validate())
	assert.NoError(t, Account{ID: 1, Discount: 100}.Validate())
	assert.ErrorIs(t, Account{ID: 1, Discount: 101}.Validate(), ErrDiscountOutOfRange)
	assert.ErrorIs(t, Account{ID: 1, Discount: -1}.Validate(), ErrDiscountOutOfRange)
}
