package enums

import "fmt"

// FileUploadStatus describes the ingestion lifecycle of an uploaded PDF.
type FileUploadStatus string

const (
	FileUploadStatusPending    FileUploadStatus = "pending"
	FileUploadStatusProcessing FileUploadStatus = "processing"
	FileUploadStatusSuccess    FileUploadStatus = "success"
	FileUploadStatusFailed     FileUploadStatus = "failed"
)

var validFileUploadStatuses = []FileUploadStatus{
	FileUploadStatusPending,
	FileUploadStatusProcessing,
	FileUploadStatusSuccess,
	FileUploadStatusFailed,
}

// String returns the literal string for the status.
func (f FileUploadStatus) String() string {
	return string(f)
}

// IsValid reports whether the status is known.
func (f FileUploadStatus) IsValid() bool {
	for _, candidate := range validFileUploadStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFileUploadStatus converts raw input into a FileUploadStatus.
func ParseFileUploadStatus(value string) (FileUploadStatus, error) {
	for _, candidate := range validFileUploadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid file upload status %q", value)
}
