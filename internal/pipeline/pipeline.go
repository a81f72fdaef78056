// Package pipeline defines the recognized pipeline identities and the
// staging directory layout each of them owns.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Pipeline errors.
var (
	ErrBlankPipeline   = errors.New("pipeline name cannot be left blank")
	ErrUnknownPipeline = errors.New("not a valid pipeline")
	ErrUnknownRole     = errors.New("unknown directory role")
)

// ID identifies one workflow run type.
type ID string

// Recognized pipelines.
const (
	Challenge      ID = "tempus_challenge_dag"
	BonusChallenge ID = "tempus_bonus_challenge_dag"
)

// Role is one of the staging directories kept per pipeline.
type Role string

// Directory roles.
const (
	RoleNews      Role = "news"
	RoleHeadlines Role = "headlines"
	RoleCSV       Role = "csv"
)

// Mode selects how a pipeline gathers headlines.
type Mode string

// Fetch modes.
const (
	ModeSources  Mode = "sources"
	ModeKeywords Mode = "keywords"
)

// DefaultRoot is the directory under home that holds every staging tree.
const DefaultRoot = "tempdata"

type definition struct {
	bucket string
	mode   Mode
}

var definitions = map[ID]definition{
	Challenge:      {bucket: "tempus-challenge-csv-headlines", mode: ModeSources},
	BonusChallenge: {bucket: "tempus-bonus-challenge-csv-headlines", mode: ModeKeywords},
}

// Roles returns the directory roles in creation order.
func Roles() []Role {
	return []Role{RoleNews, RoleHeadlines, RoleCSV}
}

// All returns every recognized pipeline, sorted.
func All() []ID {
	ids := make([]ID, 0, len(definitions))
	for id := range definitions {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Parse validates a raw pipeline name.
func Parse(name string) (ID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrBlankPipeline
	}

	id := ID(name)
	if !id.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}

	return id, nil
}

// Valid reports whether id is a recognized pipeline.
func (id ID) Valid() bool {
	_, ok := definitions[id]

	return ok
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Bucket returns the object store bucket holding this pipeline's CSV output.
func (id ID) Bucket() (string, error) {
	def, ok := definitions[id]
	if !ok {
		return "", fmt.Errorf("%w: no bucket for %q", ErrUnknownPipeline, string(id))
	}

	return def.bucket, nil
}

// Mode returns how this pipeline fetches headlines. Unknown pipelines
// report an empty mode.
func (id ID) Mode() Mode {
	return definitions[id].mode
}

// Dir builds <home>/<root>/<id>/<role>.
func (id ID) Dir(home, root string, role Role) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("%w: no directory path for %q", ErrUnknownPipeline, string(id))
	}

	if !role.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, string(role))
	}

	if root == "" {
		root = DefaultRoot
	}

	return filepath.Join(home, root, string(id), string(role)), nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleNews, RoleHeadlines, RoleCSV:
		return true
	}

	return false
}
