package models

import (
	"encoding/binary"
	"fmt"

	"custodia/internal/ledger"
	id "custodia/pkg/domain"
)

// Minted certificate parameters.
const (
	AssetName   = "Custodia Certificate"
	AssetUnit   = "CCERT"
	AssetURLFmt = "ipfs://%s"
)

// CertificateRecord binds a content hash to the asset minted for it and the
// account that paid for it. Records are never mutated or deleted.
type CertificateRecord struct {
	ContentHash id.ContentHash `json:"content_hash"`
	AssetID     id.AssetID     `json:"asset_id"`
	Owner       id.Address     `json:"owner"`
}

// recordSize is the encoded value length: asset id then owner key.
const recordSize = 8 + 32

// EncodeRecord serializes the stored value of a record.
func EncodeRecord(r CertificateRecord) []byte {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint64(buf[:8], uint64(r.AssetID))
	copy(buf[8:], r.Owner.Bytes())
	return buf
}

// DecodeRecord parses a stored value for hash.
func DecodeRecord(hash id.ContentHash, value []byte) (CertificateRecord, error) {
	if len(value) != recordSize {
		return CertificateRecord{}, fmt.Errorf("certificate record for %s: want %d bytes, got %d", hash, recordSize, len(value))
	}
	owner, err := id.AddressFromBytes(value[8:])
	if err != nil {
		return CertificateRecord{}, fmt.Errorf("certificate record for %s: %w", hash, err)
	}
	return CertificateRecord{
		ContentHash: hash,
		AssetID:     id.AssetID(binary.BigEndian.Uint64(value[:8])),
		Owner:       owner,
	}, nil
}

// UnitParams are the mint parameters for the certificate of hash.
func UnitParams(hash id.ContentHash) ledger.UnitParams {
	return ledger.UnitParams{
		Total:    1,
		Decimals: 0,
		Name:     AssetName,
		UnitName: AssetUnit,
		URL:      fmt.Sprintf(AssetURLFmt, hash),
	}
}

// FeeSchedule prices a certificate: a storage slot for the record plus the
// reserve the custodial account must hold for one more asset.
type FeeSchedule struct {
	BoxBaseFee   uint64 `json:"box_base_fee"`
	PerByteFee   uint64 `json:"per_byte_fee"`
	KeySize      uint64 `json:"key_size"`
	ValueSize    uint64 `json:"value_size"`
	AssetReserve uint64 `json:"asset_reserve"`
}

// DefaultFees returns the standard schedule, totalling 153700.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		BoxBaseFee:   2500,
		PerByteFee:   400,
		KeySize:      64,
		ValueSize:    64,
		AssetReserve: 100_000,
	}
}

// StorageCost is the cost of one record slot.
func (f FeeSchedule) StorageCost() uint64 {
	return f.BoxBaseFee + f.PerByteFee*(f.KeySize+f.ValueSize)
}

// TotalCost is the minimum payment for CreateCertificate.
func (f FeeSchedule) TotalCost() uint64 {
	return f.StorageCost() + f.AssetReserve
}

// Quote tells a client exactly what payment CreateCertificate expects.
type Quote struct {
	Fees        FeeSchedule `json:"fees"`
	StorageCost uint64      `json:"storage_cost"`
	TotalCost   uint64      `json:"total_cost"`
	Custody     id.Address  `json:"custody"`
}
