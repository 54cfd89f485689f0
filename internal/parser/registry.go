package parser

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/olx-analyzer/backend/internal/models"
)

// Root tags of the two document kinds.
const (
	CaseRootTag = "ASPENOLXDB"
	DiffRootTag = "ASPENOLX"
	DiffBodyTag = "OLXDIFF"
)

var rootKinds = map[string]models.DocumentKind{
	CaseRootTag: models.KindCase,
	DiffRootTag: models.KindDiff,
}

// DetectKind reads only as far as the root element of path and classifies it.
func DetectKind(path string) (models.DocumentKind, error) {
	src, err := OpenSource(path)
	if err != nil {
		return models.KindUnknown, err
	}
	defer src.Close()

	return DetectKindFromReader(src)
}

// DetectKindFromReader classifies the stream by its first start element.
func DetectKindFromReader(r io.Reader) (models.DocumentKind, error) {
	d, tr := newDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return models.KindUnknown, &models.FormatError{Err: fmt.Errorf("no root element")}
		}
		if err != nil {
			return models.KindUnknown, classify(err, tr, "")
		}
		if se, ok := tok.(xml.StartElement); ok {
			if kind, ok := rootKinds[se.Name.Local]; ok {
				return kind, nil
			}
			return models.KindUnknown, nil
		}
	}
}
