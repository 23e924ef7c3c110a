// Package inventory manages per-item pools of deliverable payloads.
//
// Each item owns a plain text file where every non-empty line is one
// deliverable unit (a key, an account, a link). Pop removes the first line
// and rewrites the file; the read-truncate-rewrite runs under a per-item
// lock so two concurrent buyers can never receive the same line. Items
// flagged unlimited serve their first line without consuming it.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ozerovd/linemart/internal/syncutil"
)

var (
	// ErrOutOfStock indicates the item's pool has no lines left.
	ErrOutOfStock = errors.New("inventory: out of stock")
	// ErrInvalidItem indicates the item name cannot map to a pool file.
	ErrInvalidItem = errors.New("inventory: invalid item name")
)

// DefaultSentinel is served for unlimited items whose pool file carries no
// template line.
const DefaultSentinel = "order confirmed, delivery details follow from support"

// Pool manages the on-disk line pools under a single base directory.
type Pool struct {
	dir   string
	locks syncutil.ShardedMutex

	// Sentinel is delivered for unlimited items with no template line.
	Sentinel string
}

// NewPool creates a pool rooted at dir, creating the directory if needed.
func NewPool(dir string) (*Pool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("inventory: create pool dir: %w", err)
	}
	return &Pool{dir: dir, Sentinel: DefaultSentinel}, nil
}

// Pop removes and returns the first line of the item's pool. When unlimited
// is set the line is returned without being consumed, so the pool file acts
// as a single reusable template; an unlimited item with no template falls
// back to the sentinel and never reports a stockout.
func (p *Pool) Pop(item string, unlimited bool) (string, error) {
	path, err := p.poolPath(item)
	if err != nil {
		return "", err
	}

	unlock := p.locks.Lock(path)
	defer unlock()

	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		if unlimited {
			return p.Sentinel, nil
		}
		return "", ErrOutOfStock
	}
	unit := lines[0]
	if unlimited {
		return unit, nil
	}

	if err := writeLines(path, lines[1:]); err != nil {
		return "", fmt.Errorf("inventory: rewrite pool: %w", err)
	}
	return unit, nil
}

// Provision appends units to the item's pool, creating the file if needed.
func (p *Pool) Provision(item string, units []string) error {
	path, err := p.poolPath(item)
	if err != nil {
		return err
	}

	unlock := p.locks.Lock(path)
	defer unlock()

	lines, err := readLines(path)
	if err != nil {
		return err
	}
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u != "" {
			lines = append(lines, u)
		}
	}
	return writeLines(path, lines)
}

// Count returns the number of units remaining in the item's pool.
func (p *Pool) Count(item string) (int, error) {
	path, err := p.poolPath(item)
	if err != nil {
		return 0, err
	}

	unlock := p.locks.Lock(path)
	defer unlock()

	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// poolPath maps an item name to its pool file, rejecting names that would
// escape the base directory.
func (p *Pool) poolPath(item string) (string, error) {
	name := sanitize(item)
	if name == "" {
		return "", ErrInvalidItem
	}
	return filepath.Join(p.dir, name+".txt"), nil
}

// sanitize keeps letters, digits, dash and underscore; spaces become
// underscores and everything else is dropped.
func sanitize(item string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(item)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: read pool: %w", err)
	}

	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
