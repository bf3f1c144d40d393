package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind groups uploads by how they become page images.
type Kind string

const (
	KindPDF          Kind = "pdf"          // rendered directly
	KindPresentation Kind = "presentation" // converted to PDF first
	KindImage        Kind = "image"        // a single page
	KindUnsupported  Kind = "unsupported"
)

const (
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimePPT  = "application/vnd.ms-powerpoint"
	mimeODP  = "application/vnd.oasis.opendocument.presentation"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Supported reports whether the file can be turned into pages.
func (i *FileTypeInfo) Supported() bool { return i.Kind != KindUnsupported }

// NeedsConversion reports whether LibreOffice must produce a PDF first.
func (i *FileTypeInfo) NeedsConversion() bool { return i.Kind == KindPresentation }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.resolve(mtype, filePath), nil
}

// detectBytes is Detect for an in-memory upload; name supplies the extension.
func (d *Detector) detectBytes(data []byte, name string) *FileTypeInfo {
	return d.resolve(mimetype.Detect(data), name)
}

func (d *Detector) resolve(mtype *mimetype.MIME, name string) *FileTypeInfo {
	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(name))

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", name).Msg("detected file type")

	// ZIP containers without a recognizable manifest fall back to the extension
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		switch ext {
		case ".pptx":
			mimeType, extension = mimePPTX, ".pptx"
		case ".odp":
			mimeType, extension = mimeODP, ".odp"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}
	}

	// Legacy OLE/CFB containers
	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		if ext == ".ppt" {
			mimeType, extension = mimePPT, ".ppt"
		} else {
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}
	}

	info := &FileTypeInfo{MIMEType: mimeType, Extension: extension}
	d.classify(info)
	return info
}

// classify determines how the file becomes pages
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Description = "PDF document"

	case mimeType == mimePPTX:
		info.Kind = KindPresentation
		info.Description = "Microsoft PowerPoint presentation"

	case mimeType == mimePPT:
		info.Kind = KindPresentation
		info.Description = "Microsoft PowerPoint presentation (legacy)"

	case mimeType == mimeODP:
		info.Kind = KindPresentation
		info.Description = "OpenDocument presentation"

	case mimeType == "image/png", mimeType == "image/jpeg", mimeType == "image/gif",
		mimeType == "image/bmp", mimeType == "image/tiff":
		info.Kind = KindImage
		info.Description = "Image file"

	default:
		info.Kind = KindUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
