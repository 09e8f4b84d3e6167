package handlers

import (
	"memberdir/internal/models"
	"memberdir/internal/service"
)

type DirectoryViewData struct {
	Title   string
	Members []*models.Member
	Flashes []FlashMessage
}

type FamilyMemberView struct {
	models.FamilyMember
	Age int // -1 when unknown
}

type ProfileViewData struct {
	Title    string
	Member   *models.Member
	Age      int
	Family   []FamilyMemberView
	Business *models.BusinessDetails
}

type RegisterViewData struct {
	Title string
	// CodeEntry is true while the visitor still has to supply a code
	CodeEntry bool
	Code      string
	Form      *service.Application
	Error     string
}

type RegisterSuccessViewData struct {
	Title   string
	Flashes []FlashMessage
}

type LoginViewData struct {
	Title         string
	Error         string
	Username      string
	GoogleEnabled bool
}

type AdminDashboardViewData struct {
	Title        string
	Admin        *models.Admin
	Members      []*models.Member
	PendingCount int
	ActiveCodes  int
	CSRFToken    string
	Flashes      []FlashMessage
}

type AdminMemberFormViewData struct {
	Title     string
	Admin     *models.Admin
	Action    string
	Member    *models.Member
	Form      *service.Application
	Error     string
	CSRFToken string
}

type AdminPendingViewData struct {
	Title     string
	Admin     *models.Admin
	Members   []*models.Member
	CSRFToken string
	Flashes   []FlashMessage
}

type CodeView struct {
	*models.RegistrationCode
	Status string
}

type AdminCodesViewData struct {
	Title             string
	Admin             *models.Admin
	Codes             []CodeView
	DefaultExpiryDays int
	EmailEnabled      bool
	CSRFToken         string
	Flashes           []FlashMessage
}

type AdminBackupViewData struct {
	Title     string
	Admin     *models.Admin
	CSRFToken string
	Flashes   []FlashMessage
}
