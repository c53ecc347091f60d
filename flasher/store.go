package flasher

// SegmentVars holds one firmware segment's computed artifacts: the raw
// bytes, their load address and size, and the configured checksum over
// the bytes. Immutable once computed.
type SegmentVars struct {
	Data     []byte
	Addr     uint32
	Size     int
	Checksum []byte
}

// FileVars owns the ordered segment variables of one firmware file,
// one entry per non-contiguous segment.
type FileVars struct {
	Segments []SegmentVars
}

// VarsStore maps file names to their per-run segment variables. It is
// owned by the executor for the duration of a run: written once during
// file loading, read-only during step execution. It is not safe for
// concurrent mutation.
type VarsStore struct {
	files map[string]*FileVars
}

// NewVarsStore returns an empty store.
func NewVarsStore() *VarsStore {
	return &VarsStore{files: make(map[string]*FileVars)}
}

// Reset clears the store and recreates one empty entry per configured
// file name. Called at the start of every run so stale segment data can
// never leak into a new run.
func (s *VarsStore) Reset(names []string) {
	s.files = make(map[string]*FileVars, len(names))
	for _, name := range names {
		s.files[name] = &FileVars{}
	}
}

// Append adds one segment's variables to the named file's list, in
// provider order. Appending to an unconfigured file name creates it.
func (s *VarsStore) Append(name string, v SegmentVars) {
	fv, ok := s.files[name]
	if !ok {
		fv = &FileVars{}
		s.files[name] = fv
	}
	fv.Segments = append(fv.Segments, v)
}

// File returns the named file's variables.
func (s *VarsStore) File(name string) (*FileVars, bool) {
	fv, ok := s.files[name]
	return fv, ok
}

// Segment returns segment index idx of the named file, or false if the
// file is unknown or the index is out of range.
func (s *VarsStore) Segment(name string, idx int) (SegmentVars, bool) {
	fv, ok := s.files[name]
	if !ok || idx < 0 || idx >= len(fv.Segments) {
		return SegmentVars{}, false
	}
	return fv.Segments[idx], true
}
