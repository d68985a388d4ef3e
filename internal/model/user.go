package model

import (
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
)

// AllowedImageExtensions lists the profile image extensions accepted on upload.
var AllowedImageExtensions = []string{".jpg", ".jpeg", ".png"}

// User represents an account holder. Email is the identity field.
type User struct {
	ID                        uint       `json:"id" gorm:"primaryKey"`
	Email                     string     `json:"email" gorm:"uniqueIndex;size:254;not null"`
	Name                      string     `json:"name" gorm:"size:50"`
	PasswordHash              string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	IsStaff                   bool       `json:"is_staff" gorm:"not null;default:false"`
	IsSuperuser               bool       `json:"is_superuser" gorm:"not null;default:false"`
	HasRequestedPasswordReset bool       `json:"-" gorm:"not null;default:false"`
	ProfileImage              string     `json:"profile_image,omitempty" gorm:"size:255"`
	DateJoined                time.Time  `json:"date_joined" gorm:"not null"`
	LastLogin                 *time.Time `json:"last_login,omitempty"`

	// Relations
	Addresses []Address `json:"addresses" gorm:"many2many:user_addresses;"`
}

// BeforeCreate stamps the join date once, at creation.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	return nil
}

// String returns the identity field.
func (u *User) String() string {
	return u.Email
}

// AddressIDs returns the ids of the currently loaded addresses.
func (u *User) AddressIDs() []uint {
	ids := make([]uint, 0, len(u.Addresses))
	for _, a := range u.Addresses {
		ids = append(ids, a.ID)
	}
	return ids
}

// IsAllowedImage reports whether filename carries a supported image extension.
func IsAllowedImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedImageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
