package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type PaymentKind string

const (
	PaymentCash   PaymentKind = "Cash"
	PaymentCredit PaymentKind = "Credit"
)

// PaymentMethod accepts the three wire forms the register sends:
// "Cash" (tender carried on the request), {"Cash":{"tender":n}} and
// {"Credit":{"account_id":n}}.
type PaymentMethod struct {
	Kind      PaymentKind
	Tender    *int64
	AccountID int64
}

func CashPayment(tender int64) PaymentMethod {
	return PaymentMethod{Kind: PaymentCash, Tender: &tender}
}

func CreditPayment(accountID int64) PaymentMethod {
	return PaymentMethod{Kind: PaymentCredit, AccountID: accountID}
}

func (m PaymentMethod) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case PaymentCash:
		if m.Tender == nil {
			return json.Marshal(string(PaymentCash))
		}
		return json.Marshal(map[PaymentKind]any{
			PaymentCash: struct {
				Tender int64 `json:"tender"`
			}{*m.Tender},
		})
	case PaymentCredit:
		return json.Marshal(map[PaymentKind]any{
			PaymentCredit: struct {
				AccountID int64 `json:"account_id"`
			}{m.AccountID},
		})
	default:
		return nil, fmt.Errorf("unsupported payment method %q", m.Kind)
	}
}

func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if PaymentKind(name) != PaymentCash {
			return fmt.Errorf("unsupported payment method %q", name)
		}
		*m = PaymentMethod{Kind: PaymentCash}
		return nil
	}

	var tagged map[PaymentKind]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("payment method: %w", err)
	}
	if len(tagged) != 1 {
		return errors.New("payment method must name exactly one variant")
	}

	for kind, body := range tagged {
		switch kind {
		case PaymentCash:
			var cash struct {
				Tender *int64 `json:"tender"`
			}
			if err := json.Unmarshal(body, &cash); err != nil {
				return fmt.Errorf("cash payment: %w", err)
			}
			*m = PaymentMethod{Kind: PaymentCash, Tender: cash.Tender}
		case PaymentCredit:
			var credit struct {
				AccountID *int64 `json:"account_id"`
			}
			if err := json.Unmarshal(body, &credit); err != nil {
				return fmt.Errorf("credit payment: %w", err)
			}
			if credit.AccountID == nil {
				return errors.New("credit payment requires account_id")
			}
			*m = PaymentMethod{Kind: PaymentCredit, AccountID: *credit.AccountID}
		default:
			return fmt.Errorf("unsupported payment method %q", kind)
		}
	}
	return nil
}

type TransactionRequest struct {
	TxID   string        `json:"tx_id" validate:"required,max=128"`
	Tender int64         `json:"tender" validate:"gte=0"`
	Items  []BasketEntry `json:"items" validate:"dive"`
	Method PaymentMethod `json:"method"`
}

// TenderAmount prefers the tender nested in the cash method over the
// request-level field.
func (r TransactionRequest) TenderAmount() int64 {
	if r.Method.Tender != nil {
		return *r.Method.Tender
	}
	return r.Tender
}

type OutcomeStatus string

const (
	OutcomeSuccess        OutcomeStatus = "Success"
	OutcomePartial        OutcomeStatus = "Partial"
	OutcomeInvalidAccount OutcomeStatus = "InvalidAccount"
	OutcomeFailure        OutcomeStatus = "Failure"
)

const ReasonInsufficientCredit = "Insufficient Credit"

// Outcome is the customer-facing result of a settlement call. Business
// rejections are outcomes, not errors.
type Outcome struct {
	Status    OutcomeStatus
	CashBack  int64
	Remaining int64
	AccountID int64
	Reason    string
}

func Success(cashBack int64) Outcome {
	return Outcome{Status: OutcomeSuccess, CashBack: cashBack}
}

func Partial(remaining int64) Outcome {
	return Outcome{Status: OutcomePartial, Remaining: remaining}
}

func InvalidAccount(accountID int64) Outcome {
	return Outcome{Status: OutcomeInvalidAccount, AccountID: accountID}
}

func Failure(reason string) Outcome {
	return Outcome{Status: OutcomeFailure, Reason: reason}
}

type successBody struct {
	CashBack int64 `json:"cash_back"`
}

type partialBody struct {
	Remaining int64 `json:"remaining"`
}

type invalidAccountBody struct {
	AccountID int64 `json:"account_id"`
}

type failureBody struct {
	Reason string `json:"reason"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	var body any
	switch o.Status {
	case OutcomeSuccess:
		body = successBody{CashBack: o.CashBack}
	case OutcomePartial:
		body = partialBody{Remaining: o.Remaining}
	case OutcomeInvalidAccount:
		body = invalidAccountBody{AccountID: o.AccountID}
	case OutcomeFailure:
		body = failureBody{Reason: o.Reason}
	default:
		return nil, fmt.Errorf("unknown outcome status %q", o.Status)
	}
	return json.Marshal(map[OutcomeStatus]any{o.Status: body})
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var tagged map[OutcomeStatus]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("outcome: %w", err)
	}
	if len(tagged) != 1 {
		return errors.New("outcome must name exactly one variant")
	}

	for status, raw := range tagged {
		switch status {
		case OutcomeSuccess:
			var body successBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return err
			}
			*o = Success(body.CashBack)
		case OutcomePartial:
			var body partialBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return err
			}
			*o = Partial(body.Remaining)
		case OutcomeInvalidAccount:
			var body invalidAccountBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return err
			}
			*o = InvalidAccount(body.AccountID)
		case OutcomeFailure:
			var body failureBody
			if err := json.Unmarshal(raw, &body); err != nil {
				return err
			}
			*o = Failure(body.Reason)
		default:
			return fmt.Errorf("unknown outcome status %q", status)
		}
	}
	return nil
}
