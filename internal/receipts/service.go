package receipts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/receipts-backend/internal/artifacts"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/pagination"
)

// ReceiptView is the read model returned to API callers. Artifact internals
// (storage object, local path) stay server-side.
type ReceiptView struct {
	ReceiptID        string             `json:"receipt_id"`
	PaymentReference string             `json:"payment_reference"`
	OrderID          string             `json:"order_id"`
	EmailedTo        string             `json:"emailed_to,omitempty"`
	UploadStatus     enums.UploadStatus `json:"upload_status"`
	EmailStatus      enums.EmailStatus  `json:"email_status"`
	PDFCloudURL      string             `json:"pdf_cloud_url,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	UploadedAt       *time.Time         `json:"uploaded_at,omitempty"`
	EmailedAt        *time.Time         `json:"emailed_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// DownloadLink is a time-limited URL for fetching a receipt PDF.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service exposes receipt reads and download access.
type Service interface {
	List(ctx context.Context, params ListParams) ([]ReceiptView, *pagination.Page, error)
	Get(ctx context.Context, receiptID string) (*ReceiptView, error)
	DownloadURL(ctx context.Context, receiptID string) (*DownloadLink, error)
	Download(ctx context.Context, receiptID, token string, bypassToken bool) ([]byte, string, error)
}

type service struct {
	repo          Repository
	tokens        *TokenIssuer
	store         artifacts.Store
	publicBaseURL string
	tokenTTL      time.Duration
}

// ServiceParams wires the receipt service dependencies.
type ServiceParams struct {
	Repo          Repository
	Tokens        *TokenIssuer
	Store         artifacts.Store
	PublicBaseURL string
	TokenTTL      time.Duration
}

// NewService constructs the receipt read/download service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("receipts repository required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token issuer required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	ttl := params.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &service{
		repo:          params.Repo,
		tokens:        params.Tokens,
		store:         params.Store,
		publicBaseURL: strings.TrimRight(params.PublicBaseURL, "/"),
		tokenTTL:      ttl,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]ReceiptView, *pagination.Page, error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	views := make([]ReceiptView, 0, len(rows))
	for i := range rows {
		views = append(views, toView(&rows[i]))
	}
	page := pagination.BuildPage(params.Page, total)
	return views, &page, nil
}

func (s *service) Get(ctx context.Context, receiptID string) (*ReceiptView, error) {
	receipt, err := s.repo.FindByReceiptID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	view := toView(receipt)
	return &view, nil
}

// DownloadURL mints an access URL for an uploaded receipt. A storage-signed
// URL is preferred; when signing is unavailable the link routes through the
// download endpoint with an HMAC token.
func (s *service) DownloadURL(ctx context.Context, receiptID string) (*DownloadLink, error) {
	receipt, err := s.repo.FindByReceiptID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.UploadStatus != enums.UploadUploaded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt artifact is not available yet")
	}

	loc := locationOf(receipt)
	if url, ok, err := s.store.SignedReadURL(loc, s.tokenTTL); err == nil && ok {
		return &DownloadLink{URL: url, ExpiresAt: time.Now().UTC().Add(s.tokenTTL)}, nil
	}

	issued, err := s.tokens.Issue(receipt.ReceiptID, s.tokenTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint download token")
	}
	return &DownloadLink{
		URL:       fmt.Sprintf("%s/api/receipts/%s/download?token=%s", s.publicBaseURL, receipt.ReceiptID, issued.Token),
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// Download verifies the access token and streams back the stored PDF bytes.
// bypassToken skips verification for authenticated admin callers.
func (s *service) Download(ctx context.Context, receiptID, token string, bypassToken bool) ([]byte, string, error) {
	if !bypassToken {
		if err := s.checkToken(receiptID, token); err != nil {
			return nil, "", err
		}
	}

	receipt, err := s.repo.FindByReceiptID(ctx, receiptID)
	if err != nil {
		return nil, "", err
	}
	if receipt.UploadStatus != enums.UploadUploaded {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "receipt artifact is not available")
	}

	data, err := s.store.Get(ctx, locationOf(receipt))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch receipt artifact")
	}
	return data, fmt.Sprintf("%s.pdf", receipt.ReceiptID), nil
}

func (s *service) checkToken(receiptID, token string) error {
	switch reason := s.tokens.Verify(receiptID, token); reason {
	case VerifyOK:
		return nil
	case VerifyNoSecret:
		return pkgerrors.New(pkgerrors.CodeInternal, "download token secret not configured")
	case VerifyExpired:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "download token expired").
			WithDetails(map[string]any{"reason": string(reason)})
	default:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid download token").
			WithDetails(map[string]any{"reason": string(reason)})
	}
}

func locationOf(receipt *models.Receipt) artifacts.Location {
	loc := artifacts.Location{}
	if receipt.PDFCloudURL != nil {
		loc.CloudURL = *receipt.PDFCloudURL
	}
	if receipt.StorageObject != nil {
		loc.Object = *receipt.StorageObject
	}
	if receipt.LocalPath != nil {
		loc.Path = *receipt.LocalPath
	}
	return loc
}

func toView(receipt *models.Receipt) ReceiptView {
	view := ReceiptView{
		ReceiptID:        receipt.ReceiptID,
		PaymentReference: receipt.PaymentReference,
		OrderID:          receipt.OrderID,
		EmailedTo:        receipt.EmailedTo,
		UploadStatus:     receipt.UploadStatus,
		EmailStatus:      receipt.EmailStatus,
		UploadedAt:       receipt.UploadedAt,
		EmailedAt:        receipt.EmailedAt,
		CreatedAt:        receipt.CreatedAt,
	}
	if receipt.PDFCloudURL != nil {
		view.PDFCloudURL = *receipt.PDFCloudURL
	}
	if receipt.LastError != nil {
		view.LastError = *receipt.LastError
	}
	return view
}
