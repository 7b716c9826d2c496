package crawler

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/nao1215/brokersafety/internal/textutil"
)

// maxPDFText caps the text kept from one document.
const maxPDFText = 256 << 10

// ExtractPDFText returns the text shown on the pages of a PDF. An unreadable,
// encrypted or malformed file yields "".
func ExtractPDFText(data []byte) (text string) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(plain, maxPDFText))
	if err != nil {
		return ""
	}
	return textutil.CollapseSpace(string(raw))
}
