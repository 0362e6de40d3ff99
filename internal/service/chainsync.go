package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"datanexus-marketplace/internal/client"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

const syncTimeout = 2 * time.Minute

// SyncStatus is the answer to a status probe: synced means both the
// permanent-storage upload and the on-chain anchor landed; verified means
// the stored object was refetched and its hash still matches.
type SyncStatus struct {
	Synced    bool   `json:"synced"`
	Verified  bool   `json:"verified"`
	StorageID string `json:"storage_id,omitempty"`
	AnchorTx  string `json:"anchor_tx,omitempty"`
}

// ChainSyncService mirrors dispute/refund records to permanent storage and
// anchors their hashes on chain. Sync runs detached from the triggering
// request: the business record is committed first and stays valid whether
// or not the sync ever completes.
type ChainSyncService interface {
	// EnqueueSync registers a record and spawns the detached sync task.
	// Never blocks on, and never fails, the calling request.
	EnqueueSync(recordType, refID string, payload interface{}) (string, error)
	// CheckSyncStatus is a pure read: refetch, rehash, compare.
	CheckSyncStatus(ctx context.Context, recordID string) (*SyncStatus, error)
}

type chainSyncServiceImpl struct {
	recordRepo    repository.ChainRecordRepository
	storageClient client.StorageClient
	chainClient   client.ChainClient
	logger        *zap.Logger
}

func NewChainSyncService(
	recordRepo repository.ChainRecordRepository,
	storageClient client.StorageClient,
	chainClient client.ChainClient,
	logger *zap.Logger,
) ChainSyncService {
	return &chainSyncServiceImpl{
		recordRepo:    recordRepo,
		storageClient: storageClient,
		chainClient:   chainClient,
		logger:        logger,
	}
}

func (s *chainSyncServiceImpl) EnqueueSync(recordType, refID string, payload interface{}) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sync payload: %w", err)
	}
	sum := sha256.Sum256(canonical)

	record := &model.ChainRecord{
		ID:          uuid.NewString(),
		RecordType:  recordType,
		RefID:       refID,
		PayloadHash: hex.EncodeToString(sum[:]),
		Status:      model.SyncUnsynced,
	}
	if err := s.recordRepo.Create(context.Background(), record); err != nil {
		return "", fmt.Errorf("store chain record: %w", err)
	}

	go s.runSync(record.ID, recordType, canonical)

	return record.ID, nil
}

// runSync is the detached task. Each leg retries with exponential backoff;
// a leg that still fails leaves the record unsynced with the partial
// progress saved for the next attempt.
func (s *chainSyncServiceImpl) runSync(recordID, recordType string, canonical []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	log := s.logger.With(zap.String("record_id", recordID), zap.String("record_type", recordType))

	tags := map[string]string{
		"Content-Type": "application/json",
		"App-Name":     "datanexus",
		"Record-Type":  recordType,
	}

	var storageID string
	err := backoff.Retry(func() error {
		var uploadErr error
		storageID, uploadErr = s.storageClient.Upload(ctx, canonical, tags)
		return uploadErr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	if err != nil {
		log.Warn("permanent storage upload failed, record left unsynced", zap.Error(err))
		s.markFailed(recordID, "", fmt.Sprintf("storage upload: %v", err))
		return
	}

	sum := sha256.Sum256(canonical)
	anchorPayload := fmt.Sprintf("datanexus:%s:%s:%s", recordType, storageID, hex.EncodeToString(sum[:]))

	var anchorSig string
	err = backoff.Retry(func() error {
		var anchorErr error
		anchorSig, anchorErr = s.chainClient.SendMemo(ctx, anchorPayload)
		return anchorErr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	if err != nil {
		// Storage leg succeeded; keep the storage id so a later pass only
		// needs to redo the anchor.
		log.Warn("chain anchor failed, record left unsynced", zap.Error(err), zap.String("storage_id", storageID))
		s.markFailed(recordID, storageID, fmt.Sprintf("chain anchor: %v", err))
		return
	}

	if err := s.recordRepo.MarkSynced(context.Background(), recordID, storageID, anchorSig); err != nil {
		log.Error("failed to persist sync result", zap.Error(err))
		return
	}

	log.Info("record synced", zap.String("storage_id", storageID), zap.String("anchor_tx", anchorSig))
}

func (s *chainSyncServiceImpl) markFailed(recordID, storageID, reason string) {
	if err := s.recordRepo.MarkFailed(context.Background(), recordID, storageID, reason); err != nil {
		s.logger.Error("failed to persist sync failure", zap.String("record_id", recordID), zap.Error(err))
	}
}

func (s *chainSyncServiceImpl) CheckSyncStatus(ctx context.Context, recordID string) (*SyncStatus, error) {
	record, err := s.recordRepo.FindByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{
		Synced:    record.Status == model.SyncSynced,
		StorageID: record.StorageID,
		AnchorTx:  record.AnchorTxSig,
	}
	if !status.Synced || record.StorageID == "" {
		return status, nil
	}

	stored, err := s.storageClient.Fetch(ctx, record.StorageID)
	if err != nil {
		// Cannot verify right now; the record is still synced.
		return status, nil
	}
	sum := sha256.Sum256(stored)
	status.Verified = hex.EncodeToString(sum[:]) == record.PayloadHash

	return status, nil
}
