package util

// FalseIfNil returns the dereferenced bool, treating nil as false.
func FalseIfNil(b *bool) bool {
	return b != nil && *b
}
