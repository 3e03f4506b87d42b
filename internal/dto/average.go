package dto

// ComponentAverageRequest asks for one component average.
type ComponentAverageRequest struct {
	StudentID   string `json:"studentId" binding:"required"`
	ComponentID string `json:"componentId" binding:"required"`
	SessionID   string `json:"sessionId" binding:"required"`
}

// UnitAverageRequest asks for one course unit average.
type UnitAverageRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	UnitID    string `json:"unitId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// TermAverageRequest asks for one term average.
type TermAverageRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	ClassID   string `json:"classId" binding:"required"`
	TermID    string `json:"termId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// RecomputeClassRequest asks for a full class re-aggregation.
type RecomputeClassRequest struct {
	ClassID   string `json:"classId" binding:"required"`
	TermID    string `json:"termId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// AverageResponse wraps a level result. Computable is false when inputs are missing.
type AverageResponse struct {
	Computable bool        `json:"computable"`
	Average    interface{} `json:"average,omitempty"`
}
