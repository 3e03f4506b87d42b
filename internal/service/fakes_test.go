package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/noah-isme/sma-records-api/internal/models"
)

// stubTx runs fn inline and counts transactions.
type stubTx struct {
	calls int
	err   error
}

func (s *stubTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return fn(ctx)
}

type memAverageStore struct {
	mu         sync.Mutex
	components map[string]models.ComponentAverage
	units      map[string]models.UnitAverage
	terms      map[string]models.TermAverage
	upserts    map[string]int
	findCalls  map[string]int
}

func newMemAverageStore() *memAverageStore {
	return &memAverageStore{
		components: make(map[string]models.ComponentAverage),
		units:      make(map[string]models.UnitAverage),
		terms:      make(map[string]models.TermAverage),
		upserts:    make(map[string]int),
		findCalls:  make(map[string]int),
	}
}

func avgKey(key models.AverageKey, parts ...string) string {
	out := key.StudentID + "|" + key.SessionID + "|" + key.AcademicYearID
	for _, p := range parts {
		out += "|" + p
	}
	return out
}

func (m *memAverageStore) UpsertComponent(ctx context.Context, avg *models.ComponentAverage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := avgKey(models.AverageKey{StudentID: avg.StudentID, SessionID: avg.SessionID, AcademicYearID: avg.AcademicYearID}, avg.ComponentID)
	m.components[key] = *avg
	m.upserts["component"]++
	return nil
}

func (m *memAverageStore) UpsertUnit(ctx context.Context, avg *models.UnitAverage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := avgKey(models.AverageKey{StudentID: avg.StudentID, SessionID: avg.SessionID, AcademicYearID: avg.AcademicYearID}, avg.UnitID)
	m.units[key] = *avg
	m.upserts["unit"]++
	return nil
}

func (m *memAverageStore) UpsertTerm(ctx context.Context, avg *models.TermAverage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := avgKey(models.AverageKey{StudentID: avg.StudentID, SessionID: avg.SessionID, AcademicYearID: avg.AcademicYearID}, avg.ClassID, avg.TermID)
	m.terms[key] = *avg
	m.upserts["term"]++
	return nil
}

func (m *memAverageStore) FindComponent(ctx context.Context, key models.AverageKey, componentID string) (*models.ComponentAverage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls["component"]++
	avg, ok := m.components[avgKey(key, componentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &avg, nil
}

func (m *memAverageStore) FindUnit(ctx context.Context, key models.AverageKey, unitID string) (*models.UnitAverage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls["unit"]++
	avg, ok := m.units[avgKey(key, unitID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &avg, nil
}

func (m *memAverageStore) FindTerm(ctx context.Context, key models.AverageKey, classID, termID string) (*models.TermAverage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls["term"]++
	avg, ok := m.terms[avgKey(key, classID, termID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &avg, nil
}

func (m *memAverageStore) DeleteComponent(ctx context.Context, key models.AverageKey, componentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.components, avgKey(key, componentID))
	return nil
}

func (m *memAverageStore) DeleteUnit(ctx context.Context, key models.AverageKey, unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.units, avgKey(key, unitID))
	return nil
}

func (m *memAverageStore) DeleteTerm(ctx context.Context, key models.AverageKey, classID, termID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.terms, avgKey(key, classID, termID))
	return nil
}

func (m *memAverageStore) ListTermAverages(ctx context.Context, classID, termID, sessionID, yearID string) ([]models.TermAverage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TermAverage
	for _, avg := range m.terms {
		if avg.ClassID == classID && avg.TermID == termID && avg.SessionID == sessionID && avg.AcademicYearID == yearID {
			out = append(out, avg)
		}
	}
	return out, nil
}

type memCurriculum struct {
	units      []models.CourseUnit
	components map[string][]models.Component
	weights    map[string][]models.AssessmentWeight
	registered []models.ComponentRegistration
}

func (c *memCurriculum) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	for _, list := range c.components {
		for _, comp := range list {
			if comp.ID == id {
				comp := comp
				return &comp, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (c *memCurriculum) GetUnit(ctx context.Context, id string) (*models.CourseUnit, error) {
	for _, unit := range c.units {
		if unit.ID == id {
			unit := unit
			return &unit, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *memCurriculum) ListWeights(ctx context.Context, componentID string) ([]models.AssessmentWeight, error) {
	return c.weights[componentID], nil
}

func (c *memCurriculum) ListComponents(ctx context.Context, unitID string) ([]models.Component, error) {
	return c.components[unitID], nil
}

func (c *memCurriculum) ListUnits(ctx context.Context, level, termID string) ([]models.CourseUnit, error) {
	var out []models.CourseUnit
	for _, unit := range c.units {
		if unit.Level == level && unit.TermID == termID {
			out = append(out, unit)
		}
	}
	return out, nil
}

func (c *memCurriculum) RegisterComponent(ctx context.Context, reg *models.ComponentRegistration) (bool, error) {
	for _, existing := range c.registered {
		if existing.StudentID == reg.StudentID && existing.ComponentID == reg.ComponentID && existing.AcademicYearID == reg.AcademicYearID {
			return false, nil
		}
	}
	c.registered = append(c.registered, *reg)
	return true, nil
}

// memKindScores keys scores by student then component.
type memKindScores struct {
	scores map[string]map[string][]models.KindScore
	err    error
}

func (s *memKindScores) set(studentID, componentID string, scores ...models.KindScore) {
	if s.scores == nil {
		s.scores = make(map[string]map[string][]models.KindScore)
	}
	if s.scores[studentID] == nil {
		s.scores[studentID] = make(map[string][]models.KindScore)
	}
	s.scores[studentID][componentID] = scores
}

func (s *memKindScores) ListKindScores(ctx context.Context, key models.AverageKey, componentID string) ([]models.KindScore, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[key.StudentID][componentID], nil
}

type memClasses struct {
	classes map[string]models.Class
	terms   map[string]models.Term
	session map[string]models.ExamSession
}

func (c *memClasses) FindClass(ctx context.Context, id string) (*models.Class, error) {
	class, ok := c.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (c *memClasses) FindTerm(ctx context.Context, id string) (*models.Term, error) {
	term, ok := c.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &term, nil
}

func (c *memClasses) FindSession(ctx context.Context, id string) (*models.ExamSession, error) {
	session, ok := c.session[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

type memEnrollments struct {
	students map[string][]models.EnrolledStudent
	err      error
}

func (m *memEnrollments) ListActiveStudents(ctx context.Context, classID, yearID string) ([]models.EnrolledStudent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.students[classID], nil
}

func (m *memEnrollments) FindActive(ctx context.Context, studentID, classID, yearID string) (*models.Enrollment, error) {
	for _, student := range m.students[classID] {
		if student.StudentID == studentID {
			return &models.Enrollment{ID: "enr-" + studentID, StudentID: studentID, ClassID: classID, AcademicYearID: yearID, Status: models.EnrollmentStatusActive}, nil
		}
	}
	return nil, sql.ErrNoRows
}

var errBoom = errors.New("boom")

func floatPtr(v float64) *float64 { return &v }

// gradingFixture is a class at level L1 with two units in term T1:
// U1 (6 credits, coefficient 2) holding C1 (60%) and C2 (40%),
// U2 (4 credits, coefficient 1) holding C3 (100%).
// Every component weighs CC 40% and EX 60%.
func gradingFixture() (*memCurriculum, *memClasses) {
	weights := func(componentID string) []models.AssessmentWeight {
		return []models.AssessmentWeight{
			{ComponentID: componentID, KindCode: "CC", Percentage: 40},
			{ComponentID: componentID, KindCode: "EX", Percentage: 60},
		}
	}
	curriculum := &memCurriculum{
		units: []models.CourseUnit{
			{ID: "U1", Code: "MATH", Name: "Mathematics", Level: "L1", TermID: "T1", Credits: 6, Coefficient: 2},
			{ID: "U2", Code: "PHYS", Name: "Physics", Level: "L1", TermID: "T1", Credits: 4, Coefficient: 1},
		},
		components: map[string][]models.Component{
			"U1": {
				{ID: "C1", UnitID: "U1", Code: "ALG", Name: "Algebra", WeightInUnit: 60},
				{ID: "C2", UnitID: "U1", Code: "GEO", Name: "Geometry", WeightInUnit: 40},
			},
			"U2": {
				{ID: "C3", UnitID: "U2", Code: "MEC", Name: "Mechanics", WeightInUnit: 100},
			},
		},
		weights: map[string][]models.AssessmentWeight{
			"C1": weights("C1"),
			"C2": weights("C2"),
			"C3": weights("C3"),
		},
	}
	classes := &memClasses{
		classes: map[string]models.Class{"class-1": {ID: "class-1", Name: "L1 A", Level: "L1"}},
		terms:   map[string]models.Term{"T1": {ID: "T1", Code: "S1", Name: "Semester 1", Ordinal: 1}},
		session: map[string]models.ExamSession{"sess-1": {ID: "sess-1", TermID: "T1", AcademicYearID: "year-1", Kind: models.SessionKindNormal}},
	}
	return curriculum, classes
}

func testYear() models.AcademicYear {
	days := 7
	return models.AcademicYear{ID: "year-1", Label: "2025-2026", DefaultDelayDays: &days, IsActive: true}
}
