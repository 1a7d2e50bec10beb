package domain

// UploadedFile describes one upload. It is computed per request and never
// stored; the storage filename is the only state that outlives the request.
type UploadedFile struct {
	SourceFilename  string
	Extension       string
	StorageFilename string
	IntegrityTag    string
	ContentType     string
	Size            int64
	URL             string
	DeletionURL     string
}
