// pkg/core/identity.go
package core

// Identity is an authenticated user. A nil *Identity means nobody is signed in.
type Identity struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Key returns the favourites partition key: the stable subject when the
// provider supplied one, the display name otherwise.
func (i *Identity) Key() string {
	if i == nil {
		return ""
	}
	if i.Subject != "" {
		return i.Subject
	}
	return i.DisplayName
}
