package user

// User describes an account that owns subscriptions
type User struct {
	ID    string `json:"id" gorm:"primaryKey"`     // shortuuid assigned on first login
	Email string `json:"email" gorm:"uniqueIndex"` // user's email address, also the login identifier
	Name  string `json:"name"`                     // display name used in reminder emails
}
