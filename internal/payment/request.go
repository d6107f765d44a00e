package payment

import (
	"custodia/internal/ledger"
	id "custodia/pkg/domain"
)

// Request is the payment accompanying a call as it arrives over HTTP. A
// missing sender means the caller.
type Request struct {
	Sender    id.Address `json:"sender"`
	Recipient id.Address `json:"recipient"`
	Amount    uint64     `json:"amount"`
}

// Resolve fills the sender from the authenticated caller.
func (r Request) Resolve(caller id.Address) ledger.Payment {
	sender := r.Sender
	if sender.IsNil() {
		sender = caller
	}
	return ledger.Payment{Sender: sender, Recipient: r.Recipient, Amount: r.Amount}
}
