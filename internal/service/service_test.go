package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"datanexus-marketplace/internal/client"
	"datanexus-marketplace/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Single connection keeps concurrent test goroutines serialized at the
	// pool instead of hitting sqlite's shared-cache lock errors.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.DataRequest{},
		&model.Proposal{},
		&model.Escrow{},
		&model.Dispute{},
		&model.Refund{},
		&model.ChainRecord{},
	))

	// Same partial index the sqlite client creates.
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_completed_pair ON orders (product_id, buyer_id) WHERE status = 'completed'",
	).Error)

	return db
}

func testWallet(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

// stubVerifier satisfies PaymentVerifier without touching the network.
// It echoes the proof's signature as the verified tx hash.
type stubVerifier struct {
	err   error
	calls int
}

func (s *stubVerifier) Verify(_ context.Context, _ Rail, proof *PaymentProof, _ *ExpectedCharge) (*VerifiedPayment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	hash := proof.Signature
	if hash == "" {
		hash = proof.Token
	}
	return &VerifiedPayment{TxHash: hash, Network: "solana-devnet"}, nil
}

// stubChainClient serves canned transactions keyed by signature.
type stubChainClient struct {
	txs      map[string]*client.ChainTransaction
	getErr   error
	memoSig  string
	memoErr  error
	memoLogs []string
}

func (s *stubChainClient) GetTransaction(_ context.Context, signature string) (*client.ChainTransaction, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.txs[signature], nil
}

func (s *stubChainClient) SendMemo(_ context.Context, data string) (string, error) {
	if s.memoErr != nil {
		return "", s.memoErr
	}
	s.memoLogs = append(s.memoLogs, data)
	return s.memoSig, nil
}

// stubFacilitator serves a canned verification result.
type stubFacilitator struct {
	result *client.TokenVerification
	err    error
}

func (s *stubFacilitator) VerifyToken(_ context.Context, _ string, _ *client.ExpectedPayment) (*client.TokenVerification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubStorage keeps uploaded objects in memory.
type stubStorage struct {
	objects   map[string][]byte
	uploadErr error
	fetchErr  error
	nextID    int
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: make(map[string][]byte)}
}

func (s *stubStorage) Upload(_ context.Context, data []byte, _ map[string]string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.nextID++
	id := fmt.Sprintf("stored-%d", s.nextID)
	s.objects[id] = append([]byte{}, data...)
	return id, nil
}

func (s *stubStorage) Fetch(_ context.Context, storageID string) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	data, ok := s.objects[storageID]
	if !ok {
		return nil, fmt.Errorf("object %s not found", storageID)
	}
	return data, nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
