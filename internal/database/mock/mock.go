// Package mock provides an in-memory database.Store for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// MockStore is a mock implementation of database.Store. It accepts embeddings
// of any dimension so tests can use short vectors.
type MockStore struct {
	mu         sync.RWMutex
	persons    map[string]*database.Person
	groups     map[string]*database.Group
	embeddings []database.StoredEmbedding // ordered by id
	nextID     int64

	membersOfCalls int

	// Error injection
	GetPersonError   error
	ListError        error
	UpsertError      error
	DeleteError      error
	PhotoError       error
	GroupError       error
	MembersOfError   error
	LoadError        error
	InsertError      error
	FindNearestError error
	StatsError       error
	ClearError       error
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		persons: make(map[string]*database.Person),
		groups:  make(map[string]*database.Group),
	}
}

// MembersOfCalls returns how many times MembersOf was called
func (m *MockStore) MembersOfCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.membersOfCalls
}

func (m *MockStore) personCopy(p *database.Person) database.Person {
	out := *p
	out.Photos = slices.Clone(p.Photos)
	out.EmbeddingCount = 0
	for _, e := range m.embeddings {
		if e.PersonID == p.ID {
			out.EmbeddingCount++
		}
	}
	return out
}

// GetPerson returns a copy of the person, nil if not found
func (m *MockStore) GetPerson(_ context.Context, id string) (*database.Person, error) {
	if m.GetPersonError != nil {
		return nil, m.GetPersonError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, nil
	}
	out := m.personCopy(p)
	return &out, nil
}

// ListPersons returns all persons ordered by name
func (m *MockStore) ListPersons(_ context.Context) ([]database.Person, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	persons := make([]database.Person, 0, len(m.persons))
	for _, p := range m.persons {
		persons = append(persons, m.personCopy(p))
	}
	slices.SortFunc(persons, func(a, b database.Person) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return persons, nil
}

// SearchPersons matches names ignoring case and diacritics
func (m *MockStore) SearchPersons(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := m.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	needle := facematch.NormalizePersonName(strings.TrimSpace(query))
	var matched []database.Person
	for _, p := range persons {
		if strings.Contains(facematch.NormalizePersonName(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// UpsertPerson creates or renames a person
func (m *MockStore) UpsertPerson(_ context.Context, id, name string) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.persons[id]; ok {
		p.Name = name
		return nil
	}
	m.persons[id] = &database.Person{ID: id, Name: name, CreatedAt: time.Now()}
	return nil
}

// DeletePerson removes the person with embeddings, memberships and photos
func (m *MockStore) DeletePerson(_ context.Context, id string) ([]string, error) {
	if m.DeleteError != nil {
		return nil, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	delete(m.persons, id)
	m.embeddings = slices.DeleteFunc(m.embeddings, func(e database.StoredEmbedding) bool {
		return e.PersonID == id
	})
	for _, g := range m.groups {
		g.Members = slices.DeleteFunc(g.Members, func(member string) bool { return member == id })
	}
	return p.Photos, nil
}

// AddPhoto records a photo filename
func (m *MockStore) AddPhoto(_ context.Context, personID, filename string) error {
	if m.PhotoError != nil {
		return m.PhotoError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[personID]
	if !ok {
		return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
	}
	if !slices.Contains(p.Photos, filename) {
		p.Photos = append(p.Photos, filename)
	}
	return nil
}

// RemovePhoto deletes a photo record
func (m *MockStore) RemovePhoto(_ context.Context, personID, filename string) (bool, error) {
	if m.PhotoError != nil {
		return false, m.PhotoError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[personID]
	if !ok {
		return false, nil
	}
	i := slices.Index(p.Photos, filename)
	if i < 0 {
		return false, nil
	}
	p.Photos = slices.Delete(p.Photos, i, i+1)
	return true, nil
}

func groupCopy(g *database.Group) database.Group {
	out := *g
	out.Members = slices.Clone(g.Members)
	if out.Members == nil {
		out.Members = []string{}
	}
	return out
}

// GetGroup returns a copy of the group, nil if not found
func (m *MockStore) GetGroup(_ context.Context, id string) (*database.Group, error) {
	if m.GroupError != nil {
		return nil, m.GroupError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	out := groupCopy(g)
	return &out, nil
}

// ListGroups returns all groups ordered by name
func (m *MockStore) ListGroups(_ context.Context) ([]database.Group, error) {
	if m.GroupError != nil {
		return nil, m.GroupError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := make([]database.Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, groupCopy(g))
	}
	slices.SortFunc(groups, func(a, b database.Group) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return groups, nil
}

// MembersOf returns the member ids of a group
func (m *MockStore) MembersOf(_ context.Context, groupID string) ([]string, error) {
	m.mu.Lock()
	m.membersOfCalls++
	m.mu.Unlock()

	if m.MembersOfError != nil {
		return nil, m.MembersOfError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, database.ErrNotFound)
	}
	return groupCopy(g).Members, nil
}

// SaveGroup creates or replaces a group's name and guide
func (m *MockStore) SaveGroup(_ context.Context, g database.Group) error {
	if m.GroupError != nil {
		return m.GroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.groups[g.ID]; ok {
		existing.Name = g.Name
		existing.GuideID = g.GuideID
		return nil
	}
	m.groups[g.ID] = &database.Group{ID: g.ID, Name: g.Name, GuideID: g.GuideID, CreatedAt: time.Now()}
	return nil
}

// UpdateGroup changes the non-nil fields of upd
func (m *MockStore) UpdateGroup(_ context.Context, id string, upd database.GroupUpdate) error {
	if m.GroupError != nil {
		return m.GroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return fmt.Errorf("group %s: %w", id, database.ErrNotFound)
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.GuideID != nil {
		g.GuideID = *upd.GuideID
	}
	return nil
}

// DeleteGroup removes a group
func (m *MockStore) DeleteGroup(_ context.Context, id string) (bool, error) {
	if m.GroupError != nil {
		return false, m.GroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.groups[id]
	delete(m.groups, id)
	return ok, nil
}

// AddMember adds a person to a group
func (m *MockStore) AddMember(_ context.Context, groupID, personID string) error {
	if m.GroupError != nil {
		return m.GroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, database.ErrNotFound)
	}
	if _, ok := m.persons[personID]; !ok {
		return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
	}
	if !slices.Contains(g.Members, personID) {
		g.Members = append(g.Members, personID)
		slices.Sort(g.Members)
	}
	return nil
}

// RemoveMember removes a person from a group
func (m *MockStore) RemoveMember(_ context.Context, groupID, personID string) (bool, error) {
	if m.GroupError != nil {
		return false, m.GroupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return false, nil
	}
	i := slices.Index(g.Members, personID)
	if i < 0 {
		return false, nil
	}
	g.Members = slices.Delete(g.Members, i, i+1)
	return true, nil
}

// LoadEmbeddings returns copies of the stored embeddings ordered by id
func (m *MockStore) LoadEmbeddings(_ context.Context, personIDs []string) ([]database.StoredEmbedding, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	if personIDs != nil && len(personIDs) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.StoredEmbedding
	for _, e := range m.embeddings {
		if personIDs == nil || slices.Contains(personIDs, e.PersonID) {
			e.Embedding = slices.Clone(e.Embedding)
			result = append(result, e)
		}
	}
	return result, nil
}

// CountEmbeddings returns the number of stored embeddings
func (m *MockStore) CountEmbeddings(_ context.Context) (int, error) {
	if m.LoadError != nil {
		return 0, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

// CountByPerson returns embeddings per person id
func (m *MockStore) CountByPerson(_ context.Context) (map[string]int, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.embeddings {
		counts[e.PersonID]++
	}
	return counts, nil
}

// appendEmbedding must be called with the write lock held.
func (m *MockStore) appendEmbedding(personID string, emb []float32, createdAt time.Time) int64 {
	m.nextID++
	m.embeddings = append(m.embeddings, database.StoredEmbedding{
		ID:        m.nextID,
		PersonID:  personID,
		Embedding: slices.Clone(emb),
		Dim:       len(emb),
		CreatedAt: createdAt,
	})
	return m.nextID
}

// InsertEmbedding stores a vector for an existing person
func (m *MockStore) InsertEmbedding(_ context.Context, personID string, emb []float32, createdAt time.Time) (int64, error) {
	if m.InsertError != nil {
		return 0, m.InsertError
	}
	if err := database.ValidateEmbedding(emb, 0); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[personID]; !ok {
		return 0, fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
	}
	return m.appendEmbedding(personID, emb, createdAt), nil
}

// EnrollEmbedding creates the person if absent, checks the cap and inserts
func (m *MockStore) EnrollEmbedding(
	_ context.Context, personID, personName string, emb []float32, createdAt time.Time, maxPerPerson int,
) (int64, error) {
	if m.InsertError != nil {
		return 0, m.InsertError
	}
	if err := database.ValidateEmbedding(emb, 0); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxPerPerson > 0 {
		count := 0
		for _, e := range m.embeddings {
			if e.PersonID == personID {
				count++
			}
		}
		if count >= maxPerPerson {
			return 0, fmt.Errorf("person %s has %d embeddings: %w", personID, count, database.ErrEmbeddingLimit)
		}
	}
	if _, ok := m.persons[personID]; !ok {
		m.persons[personID] = &database.Person{ID: personID, Name: personName, CreatedAt: createdAt}
	}
	return m.appendEmbedding(personID, emb, createdAt), nil
}

// DeleteEmbeddingsByPerson removes all vectors of a person
func (m *MockStore) DeleteEmbeddingsByPerson(_ context.Context, personID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.embeddings)
	m.embeddings = slices.DeleteFunc(m.embeddings, func(e database.StoredEmbedding) bool {
		return e.PersonID == personID
	})
	return before - len(m.embeddings), nil
}

// FindNearest scores all embeddings against the query
func (m *MockStore) FindNearest(_ context.Context, emb []float32, limit int) ([]database.NearestEmbedding, error) {
	if m.FindNearestError != nil {
		return nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := make([]database.NearestEmbedding, 0, len(m.embeddings))
	for _, e := range m.embeddings {
		hits = append(hits, database.NearestEmbedding{
			StoredEmbedding: e,
			Similarity:      facematch.CosineSimilarity(emb, e.Embedding),
		})
	}
	database.SortNearest(hits)
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Stats returns store counts
func (m *MockStore) Stats(ctx context.Context) (*database.Stats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	perPerson, err := m.CountByPerson(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &database.Stats{
		Persons:    len(m.persons),
		Embeddings: len(m.embeddings),
		Groups:     len(m.groups),
		PerPerson:  perPerson,
	}, nil
}

// ClearAll removes everything
func (m *MockStore) ClearAll(_ context.Context) error {
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons = make(map[string]*database.Person)
	m.groups = make(map[string]*database.Group)
	m.embeddings = nil
	return nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}
