package models

import (
	"fmt"
	"strings"
)

// deliverableSep joins the original and preview content ids at the chain and
// store boundary. The joined form is a compatibility format and must not change.
const deliverableSep = ":"

// DeliverableRef points at a checkpoint deliverable in the content store: the
// original file and a watermarked preview. For non-image files both ids are the
// same. Internally it is a proper pair; only Encode produces the boundary form.
type DeliverableRef struct {
	OriginalCID string `json:"original_cid"`
	PreviewCID  string `json:"preview_cid"`
}

// Encode serializes to the boundary form "<originalCID>:<previewCID>".
func (d DeliverableRef) Encode() string {
	if d.OriginalCID == "" {
		return ""
	}
	return d.OriginalCID + deliverableSep + d.PreviewCID
}

// ParseDeliverableRef decodes the boundary form back into a pair. A bare CID
// without a separator is accepted as original==preview, which is how non-image
// deliverables were historically stored.
func ParseDeliverableRef(s string) (DeliverableRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DeliverableRef{}, fmt.Errorf("empty deliverable ref")
	}
	orig, preview, found := strings.Cut(s, deliverableSep)
	if orig == "" {
		return DeliverableRef{}, fmt.Errorf("malformed deliverable ref %q", s)
	}
	if !found || preview == "" {
		preview = orig
	}
	return DeliverableRef{OriginalCID: orig, PreviewCID: preview}, nil
}
