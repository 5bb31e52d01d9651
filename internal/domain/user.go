package domain

// User identifies a provisioned account. Users are fixed at startup and
// never created or deleted at runtime.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
