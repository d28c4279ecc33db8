// Package memory is the in-memory directory twin used by tests. Uniqueness
// semantics (email-per-role, student natural key, assignment pairs) match
// the postgres adapter's constraints.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"enrollsync/internal/provision"
	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

type profileKey struct {
	email string
	role  string
}

type assignmentKey struct {
	student domain.StudentID
	class   domain.ClassID
}

type Store struct {
	mu          sync.RWMutex
	profiles    map[profileKey]*provision.GuardianAccount
	students    map[domain.StudentID]*provision.Student
	classes     map[domain.ClassID]*provision.Class
	assignments map[assignmentKey]provision.ClassAssignment
}

func New() *Store {
	return &Store{
		profiles:    make(map[profileKey]*provision.GuardianAccount),
		students:    make(map[domain.StudentID]*provision.Student),
		classes:     make(map[domain.ClassID]*provision.Class),
		assignments: make(map[assignmentKey]provision.ClassAssignment),
	}
}

func (s *Store) GetProfileByEmail(_ context.Context, email, role string) (*provision.GuardianAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.profiles[profileKey{email: email, role: role}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *Store) CreateProfile(_ context.Context, acct *provision.GuardianAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey{email: acct.Email, role: acct.Role}
	if _, exists := s.profiles[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *acct
	s.profiles[key] = &cp
	return nil
}

func (s *Store) RepairIdentityRef(_ context.Context, id domain.GuardianID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.profiles {
		if acct.ID == id {
			acct.IdentityRef = id
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *Store) FindStudent(_ context.Context, firstName, lastName string, birthDate time.Time, guardianID domain.GuardianID) (*provision.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.students {
		if st.FirstName == firstName && st.LastName == lastName &&
			st.BirthDate.Equal(birthDate) && st.GuardianID == guardianID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) CreateStudent(_ context.Context, st *provision.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	s.students[st.ID] = &cp
	return nil
}

func (s *Store) ListClasses(_ context.Context, orgID domain.OrgID) ([]*provision.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*provision.Class
	for _, c := range s.classes {
		if c.OrgID == orgID && c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AssignmentExists(_ context.Context, studentID domain.StudentID, classID domain.ClassID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.assignments[assignmentKey{student: studentID, class: classID}]
	return ok, nil
}

func (s *Store) CreateAssignment(_ context.Context, a provision.ClassAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{student: a.StudentID, class: a.ClassID}
	if _, exists := s.assignments[key]; exists {
		return nil
	}
	s.assignments[key] = a
	return nil
}

// SeedClass registers a class; test helper.
func (s *Store) SeedClass(c provision.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.classes[c.ID] = &cp
}

// SeedProfile registers a profile directly; test helper for drift scenarios.
func (s *Store) SeedProfile(acct provision.GuardianAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := acct
	s.profiles[profileKey{email: acct.Email, role: acct.Role}] = &cp
}

// CountStudents reports stored students; test helper.
func (s *Store) CountStudents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.students)
}

// CountProfiles reports stored profiles; test helper.
func (s *Store) CountProfiles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// CountAssignments reports stored assignments; test helper.
func (s *Store) CountAssignments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assignments)
}
