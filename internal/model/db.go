package model

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
	RequestDisputed   RequestStatus = "disputed"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

type EscrowStatus string

const (
	EscrowFunded    EscrowStatus = "funded"
	EscrowDelivered EscrowStatus = "delivered"
	EscrowDisputed  EscrowStatus = "disputed"
	EscrowCompleted EscrowStatus = "completed"
	EscrowRefunded  EscrowStatus = "refunded"
)

type DisputeReason string

const (
	DisputeDataQuality    DisputeReason = "DATA_QUALITY"
	DisputeDownloadFailed DisputeReason = "DOWNLOAD_FAILED"
	DisputeFraud          DisputeReason = "FRAUD"
	DisputeOther          DisputeReason = "OTHER"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
	DisputeRejected DisputeStatus = "rejected"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundConfirmed RefundStatus = "confirmed"
)

type SyncStatus string

const (
	SyncUnsynced SyncStatus = "unsynced"
	SyncSynced   SyncStatus = "synced"
)

// Product is an uploaded data file offered for sale. The embedded
// encryption-key record is the only key material in the relational store;
// the file ciphertext itself lives only in permanent storage.
type Product struct {
	ID          string `gorm:"primaryKey;size:64;not null"`
	OwnerID     string `gorm:"size:64;index;not null"` // provider wallet
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	// Price in USDC base units (6 decimals).
	Price     int64  `gorm:"not null"`
	Filename  string `gorm:"size:255"`
	StorageID string `gorm:"size:128"` // permanent-storage transaction id of the ciphertext

	// Envelope-encryption record: the per-file data key wrapped under the
	// process master key, plus the wrap nonce and auth tag (base64).
	WrappedKey string `gorm:"size:128"`
	WrapIV     string `gorm:"size:64"`
	WrapTag    string `gorm:"size:64"`

	// PayloadIV and PayloadTag authenticate the stored ciphertext.
	PayloadIV  string `gorm:"size:64"`
	PayloadTag string `gorm:"size:64"`

	Purchases int64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID             string      `gorm:"primaryKey;size:64;not null"`
	ProductID      string      `gorm:"size:64;index:idx_orders_product_buyer;not null"`
	BuyerID        string      `gorm:"size:64;index:idx_orders_product_buyer;not null"`
	Amount         int64       `gorm:"not null"`
	Status         OrderStatus `gorm:"size:32;index;not null"`
	PaymentRail    string      `gorm:"size:32;not null"` // direct, x402
	PaymentTxHash  string      `gorm:"size:128"`
	PaymentNetwork string      `gorm:"size:32"`
	DownloadCount  int64       `gorm:"not null;default:0"`
	LastDownloadAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DataRequest struct {
	ID        string        `gorm:"primaryKey;size:64;not null"`
	BuyerID   string        `gorm:"size:64;index;not null"`
	Title     string        `gorm:"size:255"`
	Budget    int64         `gorm:"not null"`
	Deadline  *time.Time
	Status    RequestStatus `gorm:"size:32;index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Proposal struct {
	ID         string         `gorm:"primaryKey;size:64;not null"`
	RequestID  string         `gorm:"size:64;index;not null"`
	ProviderID string         `gorm:"size:64;index;not null"`
	Price      int64          `gorm:"not null"`
	Status     ProposalStatus `gorm:"size:32;index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Escrow mirrors the on-chain escrow account. EscrowPDA is derived from
// (buyer, requestID) and must match what the chain program derives.
type Escrow struct {
	ID         string       `gorm:"primaryKey;size:64;not null"`
	EscrowPDA  string       `gorm:"size:64;uniqueIndex;not null"`
	Buyer      string       `gorm:"size:64;index;not null"`
	Provider   string       `gorm:"size:64;index;not null"`
	Platform   string       `gorm:"size:64;not null"`
	Amount     int64        `gorm:"not null"`
	RequestID  string       `gorm:"size:64;index;not null"`
	ProposalID string       `gorm:"size:64;uniqueIndex;not null"`
	// ProductID is the delivered data product, recorded at delivery; it is
	// what the buyer's decrypt grant keys on.
	ProductID string       `gorm:"size:64;index"`
	Status    EscrowStatus `gorm:"size:32;index;not null"`
	// Signature of the last applied on-chain instruction; used to absorb
	// replays of the same transition.
	Signature string `gorm:"size:128"`
	// Release split recorded on completion (95/5).
	ProviderAmount int64
	PlatformFee    int64
	DeliveredAt    *time.Time
	DisputedAt     *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Dispute struct {
	ID              string        `gorm:"primaryKey;size:64;not null"`
	OrderID         string        `gorm:"size:64;index;not null"`
	RaisedBy        string        `gorm:"size:64;not null"`
	Reason          DisputeReason `gorm:"size:32;not null"`
	Description     string        `gorm:"type:text"`
	Evidence        string        `gorm:"type:text"`
	RequestedAmount int64         `gorm:"not null"`
	Status          DisputeStatus `gorm:"size:32;index;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Refund struct {
	ID        string       `gorm:"primaryKey;size:64;not null"`
	DisputeID string       `gorm:"size:64;index;not null"`
	OrderID   string       `gorm:"size:64;index"`
	Amount    int64        `gorm:"not null"`
	Status    RefundStatus `gorm:"size:32;not null"`
	TxHash    string       `gorm:"size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChainRecord tracks the permanent-storage copy and on-chain anchor of a
// dispute/refund/rating record. The underlying business record stays valid
// whether or not the sync ever succeeds.
type ChainRecord struct {
	ID          string     `gorm:"primaryKey;size:64;not null"`
	RecordType  string     `gorm:"size:32;not null"` // dispute, refund, rating
	RefID       string     `gorm:"size:64;index;not null"`
	PayloadHash string     `gorm:"size:64"` // sha256 hex of the canonical payload
	StorageID   string     `gorm:"size:128"`
	AnchorTxSig string     `gorm:"size:128"`
	Status      SyncStatus `gorm:"size:16;index;not null"`
	LastError   string     `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
