package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

// ErrUndecryptable is returned when an archived statement does not decrypt with the configured key.
var ErrUndecryptable = errors.New("archived statement cannot be decrypted")

// Archive stores raw statements on disk under <dir>/<account>/statements/<documentId>.json.
// With a key configured, files are Fernet tokens instead of plain JSON.
type Archive struct {
	dir string
	key *fernet.Key
	log zerolog.Logger
}

// NewArchive creates an archive rooted at dir. An empty key stores plain JSON.
func NewArchive(dir, key string, log zerolog.Logger) (*Archive, error) {
	a := &Archive{dir: dir, log: log.With().Str("component", "archive").Logger()}
	if key != "" {
		k, err := fernet.DecodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("invalid archive key: %w", err)
		}
		a.key = k
	}
	return a, nil
}

// Encrypted reports whether files are written as Fernet tokens.
func (a *Archive) Encrypted() bool {
	return a.key != nil
}

func (a *Archive) accountDir(ref model.AccountRef) string {
	return filepath.Join(a.dir, safeName(string(ref)), "statements")
}

func (a *Archive) path(ref model.AccountRef, documentID string) string {
	return filepath.Join(a.accountDir(ref), safeName(documentID)+".json")
}

// Save writes the statement atomically, replacing an earlier copy of the same document.
func (a *Archive) Save(s model.RawStatement) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode statement: %w", err)
	}
	if a.key != nil {
		data, err = fernet.EncryptAndSign(data, a.key)
		if err != nil {
			return fmt.Errorf("failed to encrypt statement: %w", err)
		}
	}

	dir := a.accountDir(s.AccountRef)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".statement-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.path(s.AccountRef, s.DocumentID)); err != nil {
		return fmt.Errorf("failed to store archive file: %w", err)
	}
	return nil
}

// Load reads one archived statement.
func (a *Archive) Load(ref model.AccountRef, documentID string) (model.RawStatement, error) {
	return a.load(a.path(ref, documentID))
}

func (a *Archive) load(path string) (model.RawStatement, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the archive root
	if err != nil {
		return model.RawStatement{}, err
	}
	if a.key != nil {
		data = fernet.VerifyAndDecrypt(data, -1, []*fernet.Key{a.key})
		if data == nil {
			return model.RawStatement{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrUndecryptable)
		}
	}

	var s model.RawStatement
	if err := json.Unmarshal(data, &s); err != nil {
		return model.RawStatement{}, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// Replay yields the archived statements of the account that overlap r, in
// ascending period order. A missing account directory yields nothing.
func (a *Archive) Replay(ref model.AccountRef, r model.DateRange) iter.Seq2[model.RawStatement, error] {
	return func(yield func(model.RawStatement, error) bool) {
		entries, err := os.ReadDir(a.accountDir(ref))
		if errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Str("account", string(ref)).Msg("No archived statements")
			return
		}
		if err != nil {
			yield(model.RawStatement{}, apperrors.NewFetchError(apperrors.ErrFetchUnreachable, string(ref), err))
			return
		}

		var statements []model.RawStatement
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			s, err := a.load(filepath.Join(a.accountDir(ref), entry.Name()))
			if err != nil {
				yield(model.RawStatement{}, apperrors.NewFetchError(apperrors.ErrFetchUnreachable, string(ref), err))
				return
			}
			if s.Period().Overlaps(r) {
				statements = append(statements, s)
			}
		}

		sort.SliceStable(statements, func(i, j int) bool {
			if statements[i].PeriodStart.Equal(statements[j].PeriodStart) {
				return statements[i].DocumentID < statements[j].DocumentID
			}
			return statements[i].PeriodStart.Before(statements[j].PeriodStart)
		})

		for _, s := range statements {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
