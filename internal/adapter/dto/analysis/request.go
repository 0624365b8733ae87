package analysis

// ListJobsRequest represents query parameters for listing analysis jobs
type ListJobsRequest struct {
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Status string `query:"status" validate:"omitempty,oneof=pending submitted analyzing completed failed retrying"`
}
