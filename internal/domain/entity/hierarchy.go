package entity

import "time"

// Forum is the top level of the organizational hierarchy
type Forum struct {
	ID          string    `json:"forumId"`
	Name        string    `json:"name"`
	AdminUserID string    `json:"adminUserId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Area belongs to a Forum
type Area struct {
	ID          string    `json:"areaId"`
	ForumID     string    `json:"forumId"`
	Name        string    `json:"name"`
	AdminUserID string    `json:"adminUserId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Unit belongs to an Area; agents and members are attached to units
type Unit struct {
	ID          string    `json:"unitId"`
	AreaID      string    `json:"areaId"`
	Name        string    `json:"name"`
	AdminUserID string    `json:"adminUserId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
