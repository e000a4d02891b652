package app

import (
	"context"
	"errors"
	"fmt"

	"healthconnect/pkg/domain"
	"healthconnect/pkg/store"
)

// ProfileView is a profile with a short-lived avatar URL.
type ProfileView struct {
	domain.Profile
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are unchanged.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
}

// GetProfile returns the caller's profile.
func (a *App) GetProfile(ctx context.Context, actor Actor) (ProfileView, error) {
	profile, err := a.loadProfile(actor.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	return a.profileView(ctx, profile), nil
}

// UpdateProfile edits the caller's name and phone number.
func (a *App) UpdateProfile(ctx context.Context, actor Actor, in ProfileUpdate) (ProfileView, error) {
	profile, err := a.loadProfile(actor.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	if in.FullName != nil {
		name, _ := cleanText(*in.FullName)
		if name == "" {
			return ProfileView{}, ErrFullNameRequired
		}
		profile.FullName = name
	}
	if in.Phone != nil {
		phone := trimmed(*in.Phone)
		if phone != "" && !validPhone(phone) {
			return ProfileView{}, ErrPhoneInvalid
		}
		profile.Phone = phone
	}
	profile.UpdatedAt = a.now()
	if err := a.store.SaveProfile(profile); err != nil {
		return ProfileView{}, fmt.Errorf("save profile: %w", err)
	}
	return a.profileView(ctx, profile), nil
}

// UploadAvatar stores a profile photo in the profile-photos bucket and
// replaces the previous one.
func (a *App) UploadAvatar(ctx context.Context, actor Actor, upload Upload) (ProfileView, error) {
	profile, err := a.loadProfile(actor.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	data, err := readUpload(upload, a.maxImage)
	if err != nil {
		return ProfileView{}, err
	}
	contentType, ext, ok := sniff(data, imageTypes)
	if !ok {
		return ProfileView{}, ErrImageType
	}
	key, err := a.putObject(ctx, a.buckets.ProfilePhotos, actor.UserID, ext, contentType, data)
	if err != nil {
		return ProfileView{}, err
	}
	previous := profile.AvatarKey
	profile.AvatarKey = key
	profile.UpdatedAt = a.now()
	if err := a.store.SaveProfile(profile); err != nil {
		a.deleteObject(ctx, a.buckets.ProfilePhotos, key)
		return ProfileView{}, fmt.Errorf("save profile: %w", err)
	}
	a.deleteObject(ctx, a.buckets.ProfilePhotos, previous)
	return a.profileView(ctx, profile), nil
}

func (a *App) loadProfile(userID string) (domain.Profile, error) {
	profile, ok, err := a.store.GetProfile(userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if !ok {
		return domain.Profile{}, notFound("profile")
	}
	return profile, nil
}

func (a *App) profileView(ctx context.Context, p domain.Profile) ProfileView {
	return ProfileView{Profile: p, AvatarURL: a.presign(ctx, a.buckets.ProfilePhotos, p.AvatarKey)}
}

// InstitutionInput is an admin request to register an institution.
type InstitutionInput struct {
	Name    string
	Address string
	City    string
	Phone   string
}

// ListInstitutions returns every institution ordered by name.
func (a *App) ListInstitutions() ([]domain.Institution, error) {
	return a.store.ListInstitutions()
}

// CreateInstitution registers a healthcare institution.
func (a *App) CreateInstitution(actor Actor, in InstitutionInput) (domain.Institution, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Institution{}, err
	}
	name, _ := cleanText(in.Name)
	if name == "" {
		return domain.Institution{}, ErrInstitutionName
	}
	phone := trimmed(in.Phone)
	if phone != "" && !validPhone(phone) {
		return domain.Institution{}, ErrPhoneInvalid
	}
	address, _ := cleanText(in.Address)
	city, _ := cleanText(in.City)
	inst := domain.Institution{
		ID:        newID(),
		Name:      name,
		Address:   address,
		City:      city,
		Phone:     phone,
		CreatedAt: a.now(),
	}
	if err := a.store.SaveInstitution(inst); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Institution{}, ErrInstitutionExists
		}
		return domain.Institution{}, fmt.Errorf("save institution: %w", err)
	}
	return inst, nil
}
