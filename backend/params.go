package backend

import (
	"github.com/gozephyr/pcache/sandbox"
)

// Params is a transferable descriptor of an open backend: the pre-opened
// database and journal handles, their writability flags, and the
// shared-memory lock region arbitrating cross-process writes. Ownership of
// the OS handles moves with the value; use Duplicate or DuplicateReadOnly
// for an independently owned copy.
type Params struct {
	Type            Type
	DB              *sandbox.File
	Journal         *sandbox.File
	DBWritable      bool
	JournalWritable bool
	Lock            *sandbox.SharedLock
}

// Duplicate clones the descriptor set at full fidelity. On failure the
// handles duplicated so far are closed and the error is returned.
func (p *Params) Duplicate() (*Params, error) {
	dup := &Params{
		Type:            p.Type,
		DBWritable:      p.DBWritable,
		JournalWritable: p.JournalWritable,
	}
	if err := p.duplicateInto(dup, false); err != nil {
		return nil, err
	}
	return dup, nil
}

// DuplicateReadOnly clones the descriptor set with write access stripped.
// The database and journal are reopened O_RDONLY rather than duplicated, so
// the receiving process cannot write through them no matter what it does.
func (p *Params) DuplicateReadOnly() (*Params, error) {
	dup := &Params{Type: p.Type}
	if err := p.duplicateInto(dup, true); err != nil {
		return nil, err
	}
	return dup, nil
}

func (p *Params) duplicateInto(dup *Params, readOnly bool) error {
	clone := func(f *sandbox.File) (*sandbox.File, error) {
		if readOnly {
			return f.ReopenReadOnly()
		}
		return f.Duplicate()
	}

	if p.DB != nil {
		db, err := clone(p.DB)
		if err != nil {
			return err
		}
		dup.DB = db
	}
	if p.Journal != nil {
		journal, err := clone(p.Journal)
		if err != nil {
			_ = dup.Close()
			return err
		}
		dup.Journal = journal
	}
	if p.Lock != nil {
		lock, err := p.Lock.Duplicate()
		if err != nil {
			_ = dup.Close()
			return err
		}
		dup.Lock = lock
	}
	return nil
}

// Close releases every handle the params own. Closing twice is harmless.
func (p *Params) Close() error {
	var first error
	if p.DB != nil {
		if err := p.DB.Close(); err != nil && first == nil {
			first = err
		}
	}
	if p.Journal != nil {
		if err := p.Journal.Close(); err != nil && first == nil {
			first = err
		}
	}
	if p.Lock != nil {
		if err := p.Lock.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
