package payout

import "errors"

// MethodData holds the payee's instrument. Exactly one of Bank, Card or Wallet is set.
type MethodData struct {
	Bank   *BankDetails   `json:"bank,omitempty"`
	Card   *CardDetails   `json:"card,omitempty"`
	Wallet *WalletDetails `json:"wallet,omitempty"`
}

type BankDetails struct {
	IBAN          string `json:"iban,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	BIC           string `json:"bic,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	BankCountry   string `json:"bank_country,omitempty"`
}

type CardDetails struct {
	CardNumber     string `json:"card_number"`
	ExpiryMonth    string `json:"expiry_month"`
	ExpiryYear     string `json:"expiry_year"`
	CardHolderName string `json:"card_holder_name,omitempty"`
}

type WalletDetails struct {
	Provider    string `json:"provider"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Type returns the rail implied by the populated variant.
func (m *MethodData) Type() (Type, error) {
	switch {
	case m == nil:
		return "", errors.New("payout method data is empty")
	case m.Bank != nil && m.Card == nil && m.Wallet == nil:
		return TypeBank, nil
	case m.Card != nil && m.Bank == nil && m.Wallet == nil:
		return TypeCard, nil
	case m.Wallet != nil && m.Bank == nil && m.Card == nil:
		return TypeWallet, nil
	}
	return "", errors.New("payout method data must contain exactly one of bank, card or wallet")
}
