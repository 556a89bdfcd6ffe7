package rdio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrDuplicateTalkgroup is returned when the server configuration reuses a
	// talkgroup id or label. The id and label indices must be bijective.
	ErrDuplicateTalkgroup = errors.New("rdio: duplicate talkgroup in server configuration")

	// ErrUnknownTalkgroup is returned when a requested talkgroup is not configured.
	ErrUnknownTalkgroup = errors.New("rdio: unknown talkgroup")
)

// Directory indexes the talkgroups of a server configuration by id and by label.
type Directory struct {
	byID    map[int]Talkgroup
	byLabel map[string]int
}

// NewDirectory builds the lookup indices from cfg.
func NewDirectory(cfg *ServerConfig) (*Directory, error) {
	d := &Directory{
		byID:    make(map[int]Talkgroup),
		byLabel: make(map[string]int),
	}
	for _, sys := range cfg.Systems {
		for _, tg := range sys.Talkgroups {
			if prev, ok := d.byID[tg.ID]; ok {
				return nil, fmt.Errorf("%w: id %d in systems %d and %d", ErrDuplicateTalkgroup, tg.ID, prev.System, tg.System)
			}
			if prevID, ok := d.byLabel[tg.Label]; ok {
				return nil, fmt.Errorf("%w: label %q used by ids %d and %d", ErrDuplicateTalkgroup, tg.Label, prevID, tg.ID)
			}
			d.byID[tg.ID] = tg
			d.byLabel[tg.Label] = tg.ID
		}
	}
	return d, nil
}

// Len returns the number of indexed talkgroups.
func (d *Directory) Len() int {
	return len(d.byID)
}

// Talkgroup returns the talkgroup with the given id.
func (d *Directory) Talkgroup(id int) (Talkgroup, error) {
	tg, ok := d.byID[id]
	if !ok {
		return Talkgroup{}, fmt.Errorf("%w: id %d", ErrUnknownTalkgroup, id)
	}
	return tg, nil
}

// LabelOf returns the label of talkgroup id.
func (d *Directory) LabelOf(id int) (string, error) {
	tg, err := d.Talkgroup(id)
	if err != nil {
		return "", err
	}
	return tg.Label, nil
}

// IDOf returns the id of the talkgroup labeled label.
func (d *Directory) IDOf(label string) (int, error) {
	id, ok := d.byLabel[label]
	if !ok {
		return 0, fmt.Errorf("%w: label %q", ErrUnknownTalkgroup, label)
	}
	return id, nil
}

// Resolve looks up a talkgroup by numeric id, falling back to an exact label match.
func (d *Directory) Resolve(ref string) (Talkgroup, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil {
		if tg, ok := d.byID[id]; ok {
			return tg, nil
		}
	}
	id, err := d.IDOf(ref)
	if err != nil {
		return Talkgroup{}, err
	}
	return d.byID[id], nil
}

// ResolveAll resolves every ref, failing on the first unknown one. Refs that
// name an already resolved talkgroup, by id or by label, are dropped so each
// talkgroup appears once, at its first position.
func (d *Directory) ResolveAll(refs []string) ([]Talkgroup, error) {
	out := make([]Talkgroup, 0, len(refs))
	seen := make(map[int]bool, len(refs))
	for _, ref := range refs {
		tg, err := d.Resolve(ref)
		if err != nil {
			return nil, err
		}
		if seen[tg.ID] {
			continue
		}
		seen[tg.ID] = true
		out = append(out, tg)
	}
	return out, nil
}
