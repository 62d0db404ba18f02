package export

// Backend selects where exported sheets go.
type Backend string

const (
	GoogleBackend Backend = "google"
	MemoryBackend Backend = "memory"
)

func (b Backend) IsValid() bool {
	switch b {
	case GoogleBackend, MemoryBackend:
		return true
	}
	return false
}
