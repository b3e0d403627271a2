package enums

// UploadStatus tracks a receipt PDF through the upload leg of the pipeline.
type UploadStatus string

const (
	UploadPending  UploadStatus = "Pending"
	UploadUploaded UploadStatus = "Uploaded"
	UploadFailed   UploadStatus = "Failed"
)

var validUploadStatuses = []UploadStatus{
	UploadPending,
	UploadUploaded,
	UploadFailed,
}

// IsValid reports whether the value matches the canonical upload status enum.
func (s UploadStatus) IsValid() bool {
	for _, candidate := range validUploadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// EmailStatus tracks the delivery leg of a receipt.
type EmailStatus string

const (
	EmailPending EmailStatus = "Pending"
	EmailSent    EmailStatus = "Sent"
	EmailFailed  EmailStatus = "Failed"
)

var validEmailStatuses = []EmailStatus{
	EmailPending,
	EmailSent,
	EmailFailed,
}

// IsValid reports whether the value matches the canonical email status enum.
func (s EmailStatus) IsValid() bool {
	for _, candidate := range validEmailStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
