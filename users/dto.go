package users

// UpdateStatusRequest is the body of the admin status update.
// Pointer fields allow partial updates: a nil field is left unchanged.
type UpdateStatusRequest struct {
	IsActive *bool `json:"is_active,omitempty" example:"false"`
	IsAdmin  *bool `json:"is_admin,omitempty" example:"true"`
}
