package dto

// ExtendDeadlineRequest captures POST /assessments/:id/extend-deadline payload.
type ExtendDeadlineRequest struct {
	ExtraDays int `json:"extraDays" binding:"required,min=1,max=365"`
}

// AuthorizeModificationRequest captures POST /assessments/:id/authorize-modification payload.
type AuthorizeModificationRequest struct {
	Allowed *bool `json:"allowed" binding:"required"`
}
