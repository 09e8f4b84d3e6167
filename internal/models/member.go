package models

import (
	"sort"
	"strings"
	"time"
)

// Member statuses
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Family relations
const (
	RelationSpouse = "spouse"
	RelationChild  = "child"
)

// DateLayout is the format used for all dates of birth
const DateLayout = "2006-01-02"

// Member is a directory entrant with profile, family and optional business data
type Member struct {
	ID           int64
	Name         string
	Email        string
	Contact      string
	Address      string
	Bio          string
	DateOfBirth  string // YYYY-MM-DD, empty when unknown
	ProfileImage string // upload key, e.g. members/<uuid>.jpg
	FamilyImage  string
	PasswordHash string
	Family       []FamilyMember
	Business     *BusinessDetails
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FamilyMember is a spouse or child owned by exactly one member
type FamilyMember struct {
	Name        string
	Relation    string
	DateOfBirth string
	Education   string
	Image       string
}

// BusinessDetails is the optional business profile of a member
type BusinessDetails struct {
	Name        string
	Description string
	Website     string
	Contact     string
	Address     string
	Logo        string
}

// IsPublic reports whether the member appears in the public directory
func (m *Member) IsPublic() bool {
	return m.Status == StatusActive || m.Status == StatusApproved
}

// IsPending reports whether the member is waiting for admin approval
func (m *Member) IsPending() bool {
	return m.Status == StatusPending
}

// ImageKeys returns every upload key referenced by the member
func (m *Member) ImageKeys() []string {
	var keys []string
	add := func(k string) {
		if k != "" {
			keys = append(keys, k)
		}
	}
	add(m.ProfileImage)
	add(m.FamilyImage)
	for _, f := range m.Family {
		add(f.Image)
	}
	if m.Business != nil {
		add(m.Business.Logo)
	}
	return keys
}

// MemberPatch is a partial update. Nil fields are left untouched.
type MemberPatch struct {
	Name         *string
	Email        *string
	Contact      *string
	Address      *string
	Bio          *string
	DateOfBirth  *string
	ProfileImage *string
	FamilyImage  *string
	PasswordHash *string
	Status       *string

	// Family replaces the whole family list when non-nil
	Family *[]FamilyMember

	// Business replaces the business record when non-nil.
	// ClearBusiness removes it and wins over Business.
	Business      *BusinessDetails
	ClearBusiness bool
}

// Apply merges the patch into m field by field
func (p *MemberPatch) Apply(m *Member) {
	setString(&m.Name, p.Name)
	setString(&m.Email, p.Email)
	setString(&m.Contact, p.Contact)
	setString(&m.Address, p.Address)
	setString(&m.Bio, p.Bio)
	setString(&m.DateOfBirth, p.DateOfBirth)
	setString(&m.ProfileImage, p.ProfileImage)
	setString(&m.FamilyImage, p.FamilyImage)
	setString(&m.PasswordHash, p.PasswordHash)
	setString(&m.Status, p.Status)

	if p.Family != nil {
		m.Family = append([]FamilyMember(nil), (*p.Family)...)
	}
	switch {
	case p.ClearBusiness:
		m.Business = nil
	case p.Business != nil:
		b := *p.Business
		m.Business = &b
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// SortMembers orders members by name (case-insensitive), then by id
func SortMembers(members []*Member) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := strings.ToLower(members[i].Name), strings.ToLower(members[j].Name)
		if a != b {
			return a < b
		}
		return members[i].ID < members[j].ID
	})
}

// SortFamily returns the family ordered for display: spouses first, then by name
func SortFamily(family []FamilyMember) []FamilyMember {
	sorted := append([]FamilyMember(nil), family...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Relation == RelationSpouse, sorted[j].Relation == RelationSpouse
		if si != sj {
			return si
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	return sorted
}

// Age returns the age in whole years on the given day, or -1 if dob is not a valid date
func Age(dob string, now time.Time) int {
	born, err := time.Parse(DateLayout, dob)
	if err != nil {
		return -1
	}
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return -1
	}
	return years
}
