package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/receipts-backend/internal/artifacts"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/pdf"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/mail"
	"github.com/angelmondragon/receipts-backend/pkg/types"
)

// maxAttachmentBytes caps the PDF size sent inline; larger artifacts are
// delivered by link only.
const maxAttachmentBytes = 10 * 1024 * 1024

type eventsRepository interface {
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	Finalize(ctx context.Context, eventID string, status enums.WebhookStatus, lastError string) error
}

type ordersRepository interface {
	Upsert(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

type receiptsRepository interface {
	Ensure(ctx context.Context, paymentReference, orderID, emailedTo string) (*models.Receipt, error)
	MarkUploaded(ctx context.Context, receiptID string, loc receipts.ArtifactLocation) error
	MarkUploadFailed(ctx context.Context, receiptID, cause string) error
	MarkEmailSent(ctx context.Context, receiptID string) error
	MarkEmailFailed(ctx context.Context, receiptID, cause string) error
	UpdateCloudURL(ctx context.Context, receiptID, url string) error
	FindByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error)
}

type receiptRenderer interface {
	Render(data pdf.ReceiptData) ([]byte, error)
}

type emailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Pipeline is the worker-side orchestrator. Process is re-entrant: every step
// checks for prior completion before acting, so a retried attempt resumes
// instead of repeating side effects.
type Pipeline struct {
	events        eventsRepository
	orders        ordersRepository
	receipts      receiptsRepository
	store         artifacts.Store
	renderer      receiptRenderer
	mailer        emailSender
	tokens        *receipts.TokenIssuer
	publicBaseURL string
	tokenTTL      time.Duration
	logg          *logger.Logger
}

// Params wires the pipeline dependencies. Mailer may be nil when mail is not
// configured; the email step is then skipped and the receipt stays pending.
type Params struct {
	Events        eventsRepository
	Orders        ordersRepository
	Receipts      receiptsRepository
	Store         artifacts.Store
	Renderer      receiptRenderer
	Mailer        emailSender
	Tokens        *receipts.TokenIssuer
	PublicBaseURL string
	TokenTTL      time.Duration
	Logger        *logger.Logger
}

// New validates wiring and returns a pipeline.
func New(params Params) (*Pipeline, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipts repository required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token issuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TokenTTL
	if ttl <= 0 {
		ttl = receipts.DefaultTokenTTL
	}
	return &Pipeline{
		events:        params.Events,
		orders:        params.Orders,
		receipts:      params.Receipts,
		store:         params.Store,
		renderer:      params.Renderer,
		mailer:        params.Mailer,
		tokens:        params.Tokens,
		publicBaseURL: params.PublicBaseURL,
		tokenTTL:      ttl,
		logg:          params.Logger,
	}, nil
}

// Process runs one attempt for the claimed event. Retryable failures are
// returned without finalizing so the dispatcher can redeliver; unrecoverable
// failures before the artifact step finalize the event as FAILED.
func (p *Pipeline) Process(ctx context.Context, eventID string) error {
	ctx = p.logg.WithEventID(ctx, eventID)

	event, err := p.events.FindByEventID(ctx, eventID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// the claim existed before dispatch, so a missing row is corruption
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claimed event vanished")
		}
		return err
	}
	if event.Status == enums.WebhookCompleted {
		p.logg.Info(ctx, "event already completed, skipping")
		return nil
	}

	var payload types.WebhookEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return p.fail(ctx, eventID, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored payload is unreadable"))
	}

	// type dispatch reads the freshly stored payload, never a cached one
	if event.EventType == enums.EventOrderFailed {
		if _, err := p.upsertOrder(ctx, &payload, event.EventType); err != nil {
			return p.failUnlessRetryable(ctx, eventID, err)
		}
		if err := p.events.Finalize(ctx, eventID, enums.WebhookCompleted, ""); err != nil {
			return err
		}
		p.logg.Info(ctx, "failed-payment event completed without receipt")
		return nil
	}

	order, err := p.upsertOrder(ctx, &payload, event.EventType)
	if err != nil {
		return p.failUnlessRetryable(ctx, eventID, err)
	}

	receipt, err := p.receipts.Ensure(ctx, payload.Payment.Reference, order.OrderID, payload.Customer.Email)
	if err != nil {
		return p.failUnlessRetryable(ctx, eventID, err)
	}
	ctx = p.logg.WithReceiptID(ctx, receipt.ReceiptID)

	pdfBytes, err := p.ensureArtifact(ctx, eventID, receipt, order, &payload)
	if err != nil {
		return err
	}

	accessURL := p.ensureAccessURL(ctx, receipt)

	p.sendEmail(ctx, receipt, order, pdfBytes, accessURL)

	if err := p.events.Finalize(ctx, eventID, enums.WebhookCompleted, ""); err != nil {
		return err
	}
	p.logg.Info(ctx, "event completed")
	return nil
}

func (p *Pipeline) upsertOrder(ctx context.Context, payload *types.WebhookEventPayload, eventType enums.EventType) (*models.Order, error) {
	order, err := orders.BuildFromPayload(payload, eventType)
	if err != nil {
		return nil, err
	}
	return p.orders.Upsert(ctx, order)
}

// ensureArtifact renders and stores the PDF unless the receipt already carries
// one. For an Uploaded receipt it only tries to recover the stored bytes so
// the email step can attach them; recovery failure degrades to link-only mail
// rather than regenerating the artifact.
func (p *Pipeline) ensureArtifact(ctx context.Context, eventID string, receipt *models.Receipt, order *models.Order, payload *types.WebhookEventPayload) ([]byte, error) {
	if receipt.UploadStatus == enums.UploadUploaded {
		data, err := p.store.Get(ctx, locationOf(receipt))
		if err != nil {
			p.logg.Warn(ctx, "stored artifact could not be recovered, emailing without attachment")
			return nil, nil
		}
		return data, nil
	}

	data, err := p.renderer.Render(pdf.ReceiptData{
		ReceiptID:        receipt.ReceiptID,
		PaymentReference: receipt.PaymentReference,
		PaidAt:           payload.Payment.PaidAt,
		Order:            order,
	})
	if err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render receipt pdf")
		if markErr := p.receipts.MarkUploadFailed(ctx, receipt.ReceiptID, wrapped.Error()); markErr != nil {
			p.logg.Error(ctx, "recording render failure", markErr)
		}
		return nil, p.fail(ctx, eventID, wrapped)
	}

	loc, err := p.store.Put(ctx, fmt.Sprintf("%s.pdf", receipt.ReceiptID), data)
	if err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload receipt pdf")
		if markErr := p.receipts.MarkUploadFailed(ctx, receipt.ReceiptID, wrapped.Error()); markErr != nil {
			p.logg.Error(ctx, "recording upload failure", markErr)
		}
		return nil, wrapped
	}

	err = p.receipts.MarkUploaded(ctx, receipt.ReceiptID, receipts.ArtifactLocation{
		PDFCloudURL:   loc.CloudURL,
		StorageObject: loc.Object,
		LocalPath:     loc.Path,
	})
	if err != nil {
		return nil, err
	}

	receipt.UploadStatus = enums.UploadUploaded
	if loc.CloudURL != "" {
		receipt.PDFCloudURL = &loc.CloudURL
	}
	if loc.Object != "" {
		receipt.StorageObject = &loc.Object
	}
	if loc.Path != "" {
		receipt.LocalPath = &loc.Path
	}
	return data, nil
}

// ensureAccessURL mints a fresh time-limited download URL. Failures here are
// non-fatal; the stored URL, if any, keeps serving.
func (p *Pipeline) ensureAccessURL(ctx context.Context, receipt *models.Receipt) string {
	if url, ok, err := p.store.SignedReadURL(locationOf(receipt), p.tokenTTL); err == nil && ok {
		if err := p.receipts.UpdateCloudURL(ctx, receipt.ReceiptID, url); err != nil {
			p.logg.Warn(ctx, "persisting signed download url failed")
		}
		return url
	}

	issued, err := p.tokens.Issue(receipt.ReceiptID, p.tokenTTL)
	if err != nil {
		p.logg.Warn(ctx, "minting download token failed")
		if receipt.PDFCloudURL != nil {
			return *receipt.PDFCloudURL
		}
		return ""
	}
	url := fmt.Sprintf("%s/api/receipts/%s/download?token=%s", p.publicBaseURL, receipt.ReceiptID, issued.Token)
	if err := p.receipts.UpdateCloudURL(ctx, receipt.ReceiptID, url); err != nil {
		p.logg.Warn(ctx, "persisting download url failed")
	}
	return url
}

// sendEmail delivers the receipt. Email failure never fails the event; the
// receipt records Failed and the retry-email operation repairs it later.
func (p *Pipeline) sendEmail(ctx context.Context, receipt *models.Receipt, order *models.Order, pdfBytes []byte, accessURL string) {
	if receipt.EmailStatus == enums.EmailSent {
		return
	}
	if p.mailer == nil {
		p.logg.Warn(ctx, "mail not configured, leaving email pending")
		return
	}

	msg := buildReceiptMessage(receipt, order, pdfBytes, accessURL)
	if err := p.mailer.Send(ctx, msg); err != nil {
		p.logg.Error(ctx, "sending receipt email", err)
		if markErr := p.receipts.MarkEmailFailed(ctx, receipt.ReceiptID, err.Error()); markErr != nil {
			p.logg.Error(ctx, "recording email failure", markErr)
		}
		return
	}
	if err := p.receipts.MarkEmailSent(ctx, receipt.ReceiptID); err != nil {
		p.logg.Error(ctx, "recording email success", err)
	}
}

// RetryEmail re-attempts delivery for a receipt whose email previously failed
// or never went out. The artifact is never regenerated; stored bytes are
// recovered best-effort for the attachment.
func (p *Pipeline) RetryEmail(ctx context.Context, receiptID string) error {
	ctx = p.logg.WithReceiptID(ctx, receiptID)

	receipt, err := p.receipts.FindByReceiptID(ctx, receiptID)
	if err != nil {
		return err
	}
	if receipt.UploadStatus != enums.UploadUploaded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt artifact is not uploaded yet")
	}
	if receipt.EmailStatus == enums.EmailSent {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt email already sent")
	}
	if p.mailer == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mail is not configured")
	}

	var order *models.Order
	if found, err := p.orders.FindByOrderID(ctx, receipt.OrderID); err == nil {
		order = found
	}

	var pdfBytes []byte
	if data, err := p.store.Get(ctx, locationOf(receipt)); err == nil {
		pdfBytes = data
	} else {
		p.logg.Warn(ctx, "stored artifact could not be recovered, emailing without attachment")
	}

	accessURL := p.ensureAccessURL(ctx, receipt)

	msg := buildReceiptMessage(receipt, order, pdfBytes, accessURL)
	if err := p.mailer.Send(ctx, msg); err != nil {
		if markErr := p.receipts.MarkEmailFailed(ctx, receipt.ReceiptID, err.Error()); markErr != nil {
			p.logg.Error(ctx, "recording email failure", markErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send receipt email")
	}
	return p.receipts.MarkEmailSent(ctx, receipt.ReceiptID)
}

func buildReceiptMessage(receipt *models.Receipt, order *models.Order, pdfBytes []byte, accessURL string) mail.Message {
	subject := fmt.Sprintf("Your receipt %s", receipt.ReceiptID)
	storeName := ""
	total := ""
	if order != nil {
		storeName = order.StoreName
		total = fmt.Sprintf("%s %s", order.Currency, order.TotalPrice.Round(2).StringFixed(2))
		if storeName != "" {
			subject = fmt.Sprintf("Your receipt from %s", storeName)
		}
	}

	html := "<p>Thank you for your purchase.</p>"
	if total != "" {
		html += fmt.Sprintf("<p>Order %s, total %s.</p>", receipt.OrderID, total)
	}
	if accessURL != "" {
		html += fmt.Sprintf(`<p><a href="%s">Download your receipt</a> (link expires).</p>`, accessURL)
	}
	if pdfBytes == nil {
		html += "<p>Your receipt PDF is available through the download link above.</p>"
	}

	msg := mail.Message{
		To:      receipt.EmailedTo,
		Subject: subject,
		HTML:    html,
		Text:    fmt.Sprintf("Thank you for your purchase. Receipt %s. %s", receipt.ReceiptID, accessURL),
	}
	if pdfBytes != nil && len(pdfBytes) <= maxAttachmentBytes {
		msg.Attachments = []mail.Attachment{{
			Filename:    fmt.Sprintf("%s.pdf", receipt.ReceiptID),
			ContentType: "application/pdf",
			Content:     pdfBytes,
		}}
	}
	return msg
}

// fail finalizes the event as FAILED and returns the causing error.
func (p *Pipeline) fail(ctx context.Context, eventID string, cause error) error {
	if err := p.events.Finalize(ctx, eventID, enums.WebhookFailed, cause.Error()); err != nil {
		p.logg.Error(ctx, "finalizing failed event", err)
	}
	return cause
}

// failUnlessRetryable leaves retryable failures unfinalized so the dispatcher
// can redeliver, and finalizes everything else as FAILED.
func (p *Pipeline) failUnlessRetryable(ctx context.Context, eventID string, err error) error {
	if pkgerrors.IsRetryable(err) {
		return err
	}
	return p.fail(ctx, eventID, err)
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
