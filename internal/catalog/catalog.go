// Package catalog exposes the static department × semester subject table as
// an immutable lookup. The table ships embedded in the binary; there is no
// runtime mutation path.
package catalog

import (
	"sort"

	"github.com/veriface/attendance/internal/config"
)

// Subject is one entry of the institutional subject catalog.
type Subject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
}

// Catalog is an immutable subject lookup built from configuration.
type Catalog struct {
	byDeptSem map[string]map[int][]Subject
	deptNames map[string]string // normalized -> canonical
}

// New builds a catalog from the embedded subjects configuration.
// Subject IDs are deterministic (<dept>-<semester>-<index>) so that class
// sessions created against the catalog stay stable across restarts.
func New(cfg config.SubjectsConfig) *Catalog {
	c := &Catalog{
		byDeptSem: make(map[string]map[int][]Subject),
		deptNames: make(map[string]string),
	}
	for dept, semesters := range cfg.Departments {
		c.deptNames[NormalizeName(dept)] = dept
		c.byDeptSem[dept] = make(map[int][]Subject)
		for sem, names := range semesters {
			subjects := make([]Subject, 0, len(names))
			for i, name := range names {
				subjects = append(subjects, Subject{
					ID:         subjectID(dept, sem, i),
					Name:       name,
					Department: dept,
					Semester:   sem,
				})
			}
			c.byDeptSem[dept][sem] = subjects
		}
	}
	return c
}

// Departments returns the canonical department codes, sorted.
func (c *Catalog) Departments() []string {
	depts := make([]string, 0, len(c.byDeptSem))
	for d := range c.byDeptSem {
		depts = append(depts, d)
	}
	sort.Strings(depts)
	return depts
}

// Subjects returns the subject list for a department and semester. The
// department is matched case- and diacritic-insensitively. Returns nil when
// the combination is unknown.
func (c *Catalog) Subjects(department string, semester int) []Subject {
	canonical, ok := c.deptNames[NormalizeName(department)]
	if !ok {
		return nil
	}
	subjects := c.byDeptSem[canonical][semester]
	if len(subjects) == 0 {
		return nil
	}
	out := make([]Subject, len(subjects))
	copy(out, subjects)
	return out
}

// Lookup resolves a subject by its deterministic ID. Returns nil if unknown.
func (c *Catalog) Lookup(id string) *Subject {
	for _, semesters := range c.byDeptSem {
		for _, subjects := range semesters {
			for i := range subjects {
				if subjects[i].ID == id {
					s := subjects[i]
					return &s
				}
			}
		}
	}
	return nil
}
