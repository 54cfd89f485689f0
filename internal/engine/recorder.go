package engine

import (
	"fmt"
	"sync"
)

// Recorder is an in-memory Engine. Objects are registered up front by GUID;
// every call is appended to Calls.
type Recorder struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	open     bool
	guids    map[string]Handle
	fields   map[Handle]map[string]string

	// FailCommands makes RunCommand fail for these exact command strings.
	FailCommands map[string]bool

	Calls    []string
	Commands []string
	Saves    int
}

// NewRecorder creates a recorder with no objects.
func NewRecorder() *Recorder {
	return &Recorder{
		guids:        make(map[string]Handle),
		fields:       make(map[Handle]map[string]string),
		FailCommands: make(map[string]bool),
	}
}

// AddObject registers an object and returns its handle.
func (r *Recorder) AddObject(guid string, fields map[string]string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(len(r.guids) + 1)
	r.guids[guid] = h
	r.fields[h] = make(map[string]string, len(fields))
	for k, v := range fields {
		r.fields[h][k] = v
	}
	return h
}

func (r *Recorder) record(format string, args ...interface{}) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

func (r *Recorder) OpenCase(path string, readOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OpenCase %s %v", path, readOnly)
	r.path, r.readOnly, r.open = path, readOnly, true
	return nil
}

func (r *Recorder) FindObjectByGUID(guid string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("FindObjectByGUID %s", guid)
	if !r.open {
		return 0, ErrNoCase
	}
	h, ok := r.guids[guid]
	if !ok {
		return 0, fmt.Errorf("%s: %w", guid, ErrNotFound)
	}
	return h, nil
}

func (r *Recorder) GetFieldValue(h Handle, field string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("GetFieldValue %d %s", h, field)
	if !r.open {
		return "", ErrNoCase
	}
	obj, ok := r.fields[h]
	if !ok {
		return "", fmt.Errorf("handle %d: %w", h, ErrNotFound)
	}
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("handle %d has no field %s", h, field)
	}
	return v, nil
}

func (r *Recorder) SetFieldValue(h Handle, field, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("SetFieldValue %d %s %s", h, field, value)
	if !r.open {
		return ErrNoCase
	}
	if r.readOnly {
		return ErrReadOnly
	}
	obj, ok := r.fields[h]
	if !ok {
		return fmt.Errorf("handle %d: %w", h, ErrNotFound)
	}
	obj[field] = value
	return nil
}

func (r *Recorder) RunCommand(xml string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("RunCommand")
	if !r.open {
		return ErrNoCase
	}
	r.Commands = append(r.Commands, xml)
	if r.FailCommands[xml] {
		return fmt.Errorf("command failed: %s", xml)
	}
	return nil
}

func (r *Recorder) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Save")
	if !r.open {
		return ErrNoCase
	}
	if r.readOnly {
		return ErrReadOnly
	}
	r.Saves++
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Close")
	r.open = false
	return nil
}

var _ Engine = (*Recorder)(nil)
