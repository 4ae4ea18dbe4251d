package capture

// Signature returns the dedup/ignore key for e: type + "::" + message.
//
// Location, stack and timestamp are deliberately excluded so the same bug
// groups together across call sites and reloads.
func Signature(e Error) string {
	return SignatureOf(e.Type, e.Message)
}

// SignatureOf builds a signature from its parts.
func SignatureOf(t Type, message string) string {
	return string(t) + "::" + message
}
