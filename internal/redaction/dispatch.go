package redaction

// ResolveClick maps a click on an annotated segment back to its redaction.
// Only pending, detector-sourced records are actionable from the text view;
// anything else resolves to false and the click is inert.
func ResolveClick(store *Store, redactionID, documentID int64) (Redaction, bool) {
	doc, ok := store.Get(documentID)
	if !ok {
		return Redaction{}, false
	}
	r, ok := doc.FindRedaction(redactionID)
	if !ok || r.IsManual || r.Status != Pending {
		return Redaction{}, false
	}
	return r, true
}
