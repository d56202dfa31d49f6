package services

import (
	"context"
	"errors"
	"sort"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"gorm.io/gorm"
)

var eligibleResponders = map[models.Kind][]models.Role{
	models.KindSOS:             {models.RoleFaculty, models.RoleAdmin},
	models.KindEmergencyAssist: {models.RoleStaff, models.RoleAdmin},
	models.KindCounseling:      {models.RoleCounselor, models.RoleAdmin},
}

// EligibleResponders returns the roles allowed to handle requests of kind.
func EligibleResponders(kind models.Kind) []models.Role {
	roles := eligibleResponders[kind]
	out := make([]models.Role, len(roles))
	copy(out, roles)
	return out
}

func IsEligible(kind models.Kind, role models.Role) bool {
	for _, r := range eligibleResponders[kind] {
		if r == role {
			return true
		}
	}
	return false
}

// Directory answers role and liveness questions about users.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ActiveUsersWithRole returns the sorted ids of active users holding any of
// roles. A user has one role, so ids are distinct.
func (d *Directory) ActiveUsersWithRole(ctx context.Context, roles ...models.Role) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	var ids []string
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role IN ? AND is_active = ?", names, true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, persistenceError("list active users", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *Directory) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user")
		}
		return nil, persistenceError("load user", err)
	}
	return &user, nil
}

func (d *Directory) IsActive(ctx context.Context, id string) (bool, error) {
	user, err := d.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsActive, nil
}
