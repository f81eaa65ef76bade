package domain

// Role defines the sender of a conversation turn.
type Role string

const (
	// RoleUser indicates a message typed (or attached) by the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a reply produced by the model.
	RoleAssistant Role = "assistant"
)

// Part content types.
const (
	PartTypeText  = "text"
	PartTypeImage = "image"
)
