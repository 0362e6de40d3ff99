package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/client"
	"datanexus-marketplace/internal/crypto"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

const encryptionVersion = "1"

// ProductService runs the envelope-encryption pipeline around uploads and
// downloads. A usable plaintext file key never reaches the relational
// store: only the wrapped form is persisted, and the file ciphertext lives
// only in permanent storage.
type ProductService interface {
	Upload(ctx context.Context, ownerID, name, description, filename string, price int64, plaintext []byte) (*model.Product, error)
	// Download re-checks access synchronously, then fetches, unwraps and
	// decrypts. Fails closed on any authentication mismatch.
	Download(ctx context.Context, productID, callerID string) ([]byte, string, error)
	Get(ctx context.Context, productID string) (*model.Product, error)
}

type productServiceImpl struct {
	productRepo   repository.ProductRepository
	orderRepo     repository.OrderRepository
	access        AccessService
	envelope      *crypto.Envelope
	storageClient client.StorageClient
	logger        *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	access AccessService,
	envelope *crypto.Envelope,
	storageClient client.StorageClient,
	logger *zap.Logger,
) ProductService {
	return &productServiceImpl{
		productRepo:   productRepo,
		orderRepo:     orderRepo,
		access:        access,
		envelope:      envelope,
		storageClient: storageClient,
		logger:        logger,
	}
}

func (s *productServiceImpl) Upload(ctx context.Context, ownerID, name, description, filename string, price int64, plaintext []byte) (*model.Product, error) {
	if ownerID == "" || name == "" {
		return nil, apperr.New(apperr.CodeValidation, "owner and name required")
	}
	if price < 0 {
		return nil, apperr.New(apperr.CodeValidation, "price must not be negative")
	}
	if len(plaintext) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "file content required")
	}

	dataKey, err := crypto.GenerateDataKey()
	if err != nil {
		return nil, err
	}

	sealed, err := crypto.EncryptPayload(plaintext, dataKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	wrapped, err := s.envelope.WrapKey(dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}

	payloadIV := base64.StdEncoding.EncodeToString(sealed.IV)
	payloadTag := base64.StdEncoding.EncodeToString(sealed.AuthTag)

	storageID, err := s.storageClient.Upload(ctx, sealed.Ciphertext, map[string]string{
		client.TagEncryptionMethod:  "aes-256-gcm",
		client.TagEncryptionVersion: encryptionVersion,
		client.TagEncryptionIV:      payloadIV,
		client.TagEncryptionAuthTag: payloadTag,
		client.TagProvider:          ownerID,
		client.TagOriginalFilename:  filename,
	})
	if err != nil {
		return nil, fmt.Errorf("upload ciphertext: %w", err)
	}

	product := &model.Product{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Price:       price,
		Filename:    filename,
		StorageID:   storageID,
		WrappedKey:  base64.StdEncoding.EncodeToString(wrapped.Ciphertext),
		WrapIV:      base64.StdEncoding.EncodeToString(wrapped.IV),
		WrapTag:     base64.StdEncoding.EncodeToString(wrapped.AuthTag),
		PayloadIV:   payloadIV,
		PayloadTag:  payloadTag,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("store product: %w", err)
	}

	s.logger.Info("product uploaded",
		zap.String("product_id", product.ID),
		zap.String("storage_id", storageID),
		zap.Int("size", len(plaintext)))

	return product, nil
}

func (s *productServiceImpl) Download(ctx context.Context, productID, callerID string) ([]byte, string, error) {
	// Authorization is evaluated here, immediately before key use, on
	// every call.
	if err := s.access.Authorize(ctx, productID, callerID); err != nil {
		return nil, "", err
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, "", err
	}
	if product.StorageID == "" || product.WrappedKey == "" {
		return nil, "", apperr.New(apperr.CodeNotFound, "product %s has no stored file", productID)
	}

	ciphertext, err := s.storageClient.Fetch(ctx, product.StorageID)
	if err != nil {
		return nil, "", apperr.New(apperr.CodeExternalVerification, "fetch ciphertext: %v", err)
	}

	wrapped, err := decodeSealed(product.WrappedKey, product.WrapIV, product.WrapTag)
	if err != nil {
		return nil, "", err
	}
	dataKey, err := s.envelope.UnwrapKey(wrapped)
	if err != nil {
		return nil, "", err
	}

	payloadIV, err := base64.StdEncoding.DecodeString(product.PayloadIV)
	if err != nil {
		return nil, "", apperr.New(apperr.CodeCryptoAuth, "corrupt payload iv")
	}
	payloadTag, err := base64.StdEncoding.DecodeString(product.PayloadTag)
	if err != nil {
		return nil, "", apperr.New(apperr.CodeCryptoAuth, "corrupt payload tag")
	}

	plaintext, err := crypto.DecryptPayload(&crypto.Sealed{
		Ciphertext: ciphertext,
		IV:         payloadIV,
		AuthTag:    payloadTag,
	}, dataKey)
	if err != nil {
		return nil, "", err
	}

	// Owners download their own files without an order.
	if product.OwnerID != callerID {
		if order, err := s.orderRepo.FindCompleted(ctx, productID, callerID); err == nil {
			if err := s.orderRepo.RecordDownload(ctx, order.ID); err != nil {
				s.logger.Warn("record download failed", zap.String("order_id", order.ID), zap.Error(err))
			}
		} else if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("lookup completed order failed", zap.Error(err))
		}
	}

	return plaintext, product.Filename, nil
}

func (s *productServiceImpl) Get(ctx context.Context, productID string) (*model.Product, error) {
	return s.productRepo.FindByID(ctx, productID)
}

func decodeSealed(ciphertextB64, ivB64, tagB64 string) (*crypto.Sealed, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, apperr.New(apperr.CodeCryptoAuth, "corrupt wrapped key")
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, apperr.New(apperr.CodeCryptoAuth, "corrupt wrap iv")
	}
	tag, err := base64.StdEncoding.DecodeString(tagB64)
	if err != nil {
		return nil, apperr.New(apperr.CodeCryptoAuth, "corrupt wrap tag")
	}

	return &crypto.Sealed{Ciphertext: ciphertext, IV: iv, AuthTag: tag}, nil
}
