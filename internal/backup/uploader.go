package backup

import "context"

// Uploader moves a local file to remote blob storage, reporting byte-ratio
// progress. The core depends only on this contract.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string, report ReportFunc) error
}
