package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FamilyMember is one person in the household roster.
type FamilyMember struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Family is the aggregate that groups linked accounts and items. The member
// roster and preferred language feed the enrichment prompt.
type Family struct {
	ID       string         `json:"id" gorm:"primaryKey"`
	Name     string         `json:"name"`
	Language string         `json:"language"`
	Members  datatypes.JSON `json:"members" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Family) TableName() string {
	return "families"
}

// MemberList decodes the roster.
func (f *Family) MemberList() ([]FamilyMember, error) {
	if len(f.Members) == 0 {
		return nil, nil
	}
	var members []FamilyMember
	if err := json.Unmarshal(f.Members, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// MemberTagsByName maps each member name to their tags.
func (f *Family) MemberTagsByName() (map[string][]string, error) {
	members, err := f.MemberList()
	if err != nil {
		return nil, err
	}
	tags := make(map[string][]string, len(members))
	for _, m := range members {
		tags[m.Name] = m.Tags
	}
	return tags, nil
}
