package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"memberdir/internal/service"
	"memberdir/internal/uploads"
)

// multipartMemory is how much of a multipart form is held in memory before spilling to disk
const multipartMemory = 8 << 20

// memberForm is a parsed member form plus the open upload files behind it
type memberForm struct {
	App      *service.Application
	Password string
	Code     string

	files []multipart.File
	req   *http.Request
}

// Close releases the upload files and temporary form storage
func (f *memberForm) Close() {
	for _, file := range f.files {
		file.Close()
	}
	if f.req.MultipartForm != nil {
		f.req.MultipartForm.RemoveAll()
	}
}

// parseMemberForm reads the registration / add-member / edit form.
// Family rows arrive as parallel family_*[] fields; the photo for row i is family_photo_<i>.
// Stored image keys are only read when keepExisting is set, which only the edit form does.
func parseMemberForm(r *http.Request, keepExisting bool) (*memberForm, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	f := &memberForm{req: r}
	app := &service.Application{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Contact:     r.FormValue("contact"),
		Address:     r.FormValue("address"),
		Bio:         r.FormValue("bio"),
		DateOfBirth: r.FormValue("date_of_birth"),
		Business: service.BusinessEntry{
			Name:        r.FormValue("business_name"),
			Description: r.FormValue("business_description"),
			Website:     r.FormValue("business_website"),
			Contact:     r.FormValue("business_contact"),
			Address:     r.FormValue("business_address"),
		},
	}
	if keepExisting {
		app.Business.ExistingLogo = r.FormValue("business_existing_logo")
	}
	f.App = app
	f.Password = r.FormValue("password")
	f.Code = r.FormValue("code")

	var err error
	if app.ProfileImage, err = f.upload("profile_image"); err != nil {
		f.Close()
		return nil, err
	}
	if app.FamilyImage, err = f.upload("family_image"); err != nil {
		f.Close()
		return nil, err
	}
	if app.Business.Logo, err = f.upload("business_logo"); err != nil {
		f.Close()
		return nil, err
	}

	names := r.Form["family_name[]"]
	relations := r.Form["family_relation[]"]
	dobs := r.Form["family_dob[]"]
	educations := r.Form["family_education[]"]
	var existing []string
	if keepExisting {
		existing = r.Form["family_existing_image[]"]
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		entry := service.FamilyEntry{
			Name:          name,
			Relation:      at(relations, i),
			DateOfBirth:   at(dobs, i),
			Education:     at(educations, i),
			ExistingImage: at(existing, i),
		}
		if entry.Image, err = f.upload(fmt.Sprintf("family_photo_%d", i)); err != nil {
			f.Close()
			return nil, err
		}
		app.Family = append(app.Family, entry)
	}

	return f, nil
}

// upload returns the file posted under field, or nil when none was chosen
func (f *memberForm) upload(field string) (*uploads.Upload, error) {
	file, header, err := f.req.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	f.files = append(f.files, file)
	if header.Size == 0 {
		return nil, nil
	}
	return &uploads.Upload{Filename: header.Filename, Size: header.Size, Reader: file}, nil
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
