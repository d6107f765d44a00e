package ledger

import (
	id "custodia/pkg/domain"
)

// Payment describes an inbound transfer of funds that accompanies an
// operation. The sender is attested by the environment.
type Payment struct {
	Sender    id.Address `json:"sender"`
	Recipient id.Address `json:"recipient"`
	Amount    uint64     `json:"amount"`
}

// UnitParams are the immutable parameters of a minted asset.
type UnitParams struct {
	Total    uint64 `json:"total"`
	Decimals uint32 `json:"decimals"`
	Name     string `json:"name"`
	UnitName string `json:"unit_name"`
	URL      string `json:"url"`
}

// Asset is a minted asset and its parameters.
type Asset struct {
	ID      id.AssetID `json:"id"`
	Creator id.Address `json:"creator"`
	UnitParams
}

// Holding is an account's position in one asset. Amount may be zero for an
// account that registered but holds nothing yet.
type Holding struct {
	AssetID id.AssetID `json:"asset_id"`
	Amount  uint64     `json:"amount"`
}

// Account is a read-only view of an account.
type Account struct {
	Address  id.Address `json:"address"`
	Balance  uint64     `json:"balance"`
	Closed   bool       `json:"closed"`
	Holdings []Holding  `json:"holdings"`
}
