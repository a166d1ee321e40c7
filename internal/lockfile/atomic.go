package lockfile

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
)

// Validator is implemented by every persisted entity. Validate runs on
// each write before serialization and on each read after decoding, so a
// schema-violating file never leaks into the rest of the system.
type Validator interface {
	Validate() error
}

// ReadValidated decodes the JSON file at path into v and validates it.
// A missing file surfaces as NotFound; a malformed or schema-violating
// one as Corrupted.
func ReadValidated(path string, v Validator) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errdefs.NotFoundf("%s does not exist", path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errdefs.Corrupted(path, err)
	}
	if err := v.Validate(); err != nil {
		return errdefs.Corrupted(path, err)
	}
	return nil
}

// WriteAtomic validates v, serializes it, writes to a temp file in the
// same directory, and renames over path. Rename is atomic on POSIX, so
// readers never observe a partial file.
func WriteAtomic(path string, v Validator) error {
	if err := v.Validate(); err != nil {
		return errdefs.Validationf("%s: %v", filepath.Base(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp := fmt.Sprintf("%s.tmp.%08x", path, rand.Uint32())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// LockedUpdate takes the exclusive lock at lockPath, reads path into v,
// applies the mutator, and writes the result atomically.
func LockedUpdate(lockPath, path string, v Validator, mutate func() error) error {
	return WithLock(lockPath, true, func() error {
		if err := ReadValidated(path, v); err != nil {
			return err
		}
		if err := mutate(); err != nil {
			return err
		}
		return WriteAtomic(path, v)
	})
}

// LockedUpsert is LockedUpdate that tolerates a missing file: init is
// called to populate v with the default value before the mutator runs.
func LockedUpsert(lockPath, path string, v Validator, init func(), mutate func() error) error {
	return WithLock(lockPath, true, func() error {
		if err := ReadValidated(path, v); err != nil {
			if !errdefs.IsNotFound(err) {
				return err
			}
			init()
		}
		if err := mutate(); err != nil {
			return err
		}
		return WriteAtomic(path, v)
	})
}
