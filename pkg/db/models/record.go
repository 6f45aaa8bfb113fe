package models

import "time"

// Record statuses. Transitions are monotonic: pending -> confirmed, never
// back.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// Record is the off-chain projection of one attested content address.
// ContentAddress and Fingerprint are both unique across the table; exactly
// one record exists per distinct content address ever observed.
type Record struct {
	ContentAddress string    `json:"contentAddress" ch:"content_address"`
	Fingerprint    string    `json:"fingerprint" ch:"fingerprint"`
	Submitter      string    `json:"submitter" ch:"submitter"`
	LedgerSeq      uint64    `json:"ledgerSeq" ch:"ledger_seq"`
	Category       string    `json:"category,omitempty" ch:"category"`
	Note           string    `json:"note,omitempty" ch:"note"`
	Status         string    `json:"status" ch:"status"`
	CreatedAt      time.Time `json:"createdAt" ch:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" ch:"updated_at"`

	// Version orders row replacements in storage. Callers never set it.
	Version uint64 `json:"-" ch:"version"`
}

// Proof is the metadata-only view served by the proof endpoint. It must
// never carry plaintext or ciphertext payload fields.
type Proof struct {
	ContentAddress string `json:"contentAddress"`
	Fingerprint    string `json:"fingerprint"`
	LedgerSeq      uint64 `json:"ledgerSeq"`
	Submitter      string `json:"submitter"`
	Category       string `json:"category,omitempty"`
}

// ProofOf projects a record down to its attestation metadata.
func ProofOf(r *Record) *Proof {
	return &Proof{
		ContentAddress: r.ContentAddress,
		Fingerprint:    r.Fingerprint,
		LedgerSeq:      r.LedgerSeq,
		Submitter:      r.Submitter,
		Category:       r.Category,
	}
}
