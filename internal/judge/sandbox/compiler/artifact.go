package compiler

// Artifact is a compiled executable image held in memory.
type Artifact struct {
	LanguageID  string
	EntrySymbol string
	Image       []byte
}

// Size returns the image length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Image)
}

// Close discards the image. It is safe to call more than once.
func (a *Artifact) Close() error {
	if a != nil {
		a.Image = nil
	}
	return nil
}
