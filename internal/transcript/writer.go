// Package transcript reads and writes transcript text files alongside their
// recordings.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starcoach/starcoach/internal/utils"
)

const headerRule = "--------------------------------------------------------------------------------"

// Store saves transcripts under a single directory, one file per recording.
type Store struct {
	dir   string
	nowFn func() time.Time
}

func NewStore(dir string) (*Store, error) {
	const op = "Transcript.NewStore"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create transcripts directory", err)
	}
	return &Store{dir: dir, nowFn: time.Now}, nil
}

// Save writes the transcript for the named audio file with a small metadata
// header, atomically. Returns the transcript path.
func (s *Store) Save(audioFilename, text string) (string, error) {
	const op = "Transcript.Save"

	base := strings.TrimSuffix(filepath.Base(audioFilename), filepath.Ext(audioFilename))
	path := filepath.Join(s.dir, base+"_transcript.txt")

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript for: %s\n", filepath.Base(audioFilename))
	fmt.Fprintf(&b, "Generated: %s\n", s.nowFn().Format("2006-01-02 15:04:05"))
	b.WriteString(headerRule + "\n\n")
	b.WriteString(text)

	tmp, err := os.CreateTemp(s.dir, ".transcript-*")
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return "", utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}
	if err := tmp.Close(); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to save transcript", err)
	}
	return path, nil
}

// Load reads a transcript file back, skipping the metadata header when
// present. Files written by other tools load verbatim.
func Load(path string) (string, error) {
	const op = "Transcript.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", utils.E(utils.CodeNotFound, op, "transcript not found", err)
		}
		return "", utils.E(utils.CodeInternal, op, "failed to read transcript", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > 3 && strings.HasPrefix(lines[2], "--------------------") {
		return strings.Join(lines[4:], "\n"), nil
	}
	return string(data), nil
}
