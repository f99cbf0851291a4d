package consolesync

// PreviewText shortens a session preview to at most limit characters for
// table display, appending "..." when truncated. Runes are counted, not bytes,
// so CJK, Cyrillic and emoji are never split. An empty preview renders as "-".
func PreviewText(text string, limit int) string {
	if text == "" {
		return "-"
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + "..."
		}
		n++
	}
	return text
}
