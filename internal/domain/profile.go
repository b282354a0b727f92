package domain

// Profile is read from the users table owned by the auth service.
type Profile struct {
	ID          string  `db:"id" json:"id"`
	DisplayName *string `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

func (p *Profile) Name() string {
	if p == nil || p.DisplayName == nil || *p.DisplayName == "" {
		return "Someone"
	}
	return *p.DisplayName
}
