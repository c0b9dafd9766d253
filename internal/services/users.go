package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
)

const (
	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL = time.Hour
	// InviteTokenTTL is how long an account setup link stays valid.
	InviteTokenTTL = 7 * 24 * time.Hour
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
)

// UserInput carries user fields. Nil fields are left untouched on update.
type UserInput struct {
	Username *string `json:"username" yaml:"username"`
	Email    *string `json:"email" yaml:"email"`
	Name     *string `json:"name" yaml:"name"`
	Role     *string `json:"role" yaml:"role"`
	Password *string `json:"password" yaml:"password"`
}

// ListUsers returns users sorted by username, optionally matching a search term.
func ListUsers(db *gorm.DB, search string) ([]models.User, error) {
	query := db.Model(&models.User{})
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	var users []models.User
	if err := query.Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser loads one user.
func GetUser(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, findOr404(err, "user")
	}
	return &user, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return invalid("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

func validateUserInput(in UserInput, creating bool) error {
	if creating {
		if in.Username == nil || strings.TrimSpace(*in.Username) == "" {
			return invalid("username is required")
		}
		if in.Email == nil || strings.TrimSpace(*in.Email) == "" {
			return invalid("email is required")
		}
	}
	if in.Username != nil && strings.TrimSpace(*in.Username) == "" {
		return invalid("username cannot be empty")
	}
	if in.Email != nil {
		if _, err := mail.ParseAddress(strings.TrimSpace(*in.Email)); err != nil {
			return invalid("email is not a valid address")
		}
	}
	if in.Role != nil && !contains(models.Roles, *in.Role) {
		return invalid("role must be one of %s", strings.Join(models.Roles, ", "))
	}
	if in.Password != nil && *in.Password != "" {
		return validatePassword(*in.Password)
	}
	return nil
}

// checkUnique reports a conflict when another user holds the username or email.
func checkUnique(db *gorm.DB, excludeID string, in UserInput) error {
	check := func(column, value string) error {
		var count int64
		q := db.Model(&models.User{}).Where("LOWER("+column+") = ?", strings.ToLower(value))
		if excludeID != "" {
			q = q.Where("id <> ?", excludeID)
		}
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s already in use", ErrConflict, column)
		}
		return nil
	}
	if in.Username != nil {
		if err := check("username", strings.TrimSpace(*in.Username)); err != nil {
			return err
		}
	}
	if in.Email != nil {
		if err := check("email", strings.TrimSpace(*in.Email)); err != nil {
			return err
		}
	}
	return nil
}

func conflictOr(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: username or email already in use", ErrConflict)
	}
	return err
}

// CreateUser creates a user. Without a password the account cannot sign in
// until a reset or setup link is used.
func CreateUser(db *gorm.DB, in UserInput) (*models.User, error) {
	if err := validateUserInput(in, true); err != nil {
		return nil, err
	}
	if err := checkUnique(db, "", in); err != nil {
		return nil, err
	}

	user := models.User{
		Username: strings.TrimSpace(*in.Username),
		Email:    strings.ToLower(strings.TrimSpace(*in.Email)),
		Role:     models.RoleViewer,
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		user.Role = *in.Role
	}

	var err error
	if in.Password != nil && *in.Password != "" {
		user.PasswordHash, err = auth.HashPassword(*in.Password)
	} else {
		user.PasswordHash, err = auth.UnusablePasswordHash()
	}
	if err != nil {
		return nil, err
	}

	if err := db.Create(&user).Error; err != nil {
		return nil, conflictOr(err)
	}
	return &user, nil
}

// UpdateUser applies a partial update and returns the before and after states.
func UpdateUser(db *gorm.DB, id string, in UserInput) (*models.User, *models.User, error) {
	before, err := GetUser(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := validateUserInput(in, false); err != nil {
		return nil, nil, err
	}
	if err := checkUnique(db, id, in); err != nil {
		return nil, nil, err
	}

	updates := map[string]interface{}{}
	if in.Username != nil {
		updates["username"] = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		updates["role"] = *in.Role
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, nil, err
		}
		updates["password_hash"] = hash
	}

	if len(updates) > 0 {
		if err := db.Model(&models.User{Entity: models.Entity{ID: id}}).Updates(updates).Error; err != nil {
			return nil, nil, conflictOr(err)
		}
	}

	after, err := GetUser(db, id)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// DeleteUser removes a user. Users cannot delete themselves.
func DeleteUser(db *gorm.DB, id, actingUserID string) (*models.User, error) {
	if id == actingUserID {
		return nil, invalid("you cannot delete your own account")
	}
	user, err := GetUser(db, id)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AuditLog{}).Where("user_id = ?", id).Update("user_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ImportResult is the outcome of one imported row.
type ImportResult struct {
	Row      int          `json:"row"`
	Username string       `json:"username"`
	OK       bool         `json:"ok"`
	Error    string       `json:"error,omitempty"`
	User     *models.User `json:"user,omitempty"`
}

// ImportUsers creates every row independently. A failing row never stops
// the rest of the import.
func ImportUsers(db *gorm.DB, rows []UserInput) []ImportResult {
	results := make([]ImportResult, 0, len(rows))
	for i, row := range rows {
		result := ImportResult{Row: i + 1}
		if row.Username != nil {
			result.Username = strings.TrimSpace(*row.Username)
		}
		user, err := CreateUser(db, row)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.OK = true
			result.User = user
		}
		results = append(results, result)
	}
	return results
}

// Login checks the credentials against the username or email and issues a
// bearer token.
func Login(db *gorm.DB, issuer *auth.Issuer, login, password string) (string, *models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return "", nil, invalid("username and password are required")
	}

	var user models.User
	err := db.Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return "", nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return "", nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}

	token, err := issuer.Generate(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// setResetToken stores a fresh token hash on the user and returns the raw token.
func setResetToken(db *gorm.DB, user *models.User, ttl time.Duration) (string, error) {
	raw, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl)
	if err := db.Model(user).Updates(map[string]interface{}{
		"reset_password_token":   hash,
		"reset_password_expires": expires,
	}).Error; err != nil {
		return "", err
	}
	user.ResetPasswordToken = hash
	user.ResetPasswordExpires = &expires
	return raw, nil
}

// ForgotPassword issues a reset token for the account owning email. An
// unknown email yields no user and no error.
func ForgotPassword(db *gorm.DB, email string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", invalid("email is required")
	}

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	raw, err := setResetToken(db, &user, ResetTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return &user, raw, nil
}

// ValidateResetToken returns the user owning an unexpired token.
func ValidateResetToken(db *gorm.DB, raw string) (*models.User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, invalid("token is required")
	}
	var user models.User
	err := db.Where("reset_password_token = ? AND reset_password_expires > ?", auth.HashToken(raw), time.Now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("token is invalid or expired")
		}
		return nil, err
	}
	return &user, nil
}

// ResetPassword sets a new password through a valid token, consuming it.
func ResetPassword(db *gorm.DB, raw, password string) (*models.User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	user, err := ValidateResetToken(db, raw)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := db.Model(user).Updates(map[string]interface{}{
		"password_hash":          hash,
		"reset_password_token":   "",
		"reset_password_expires": nil,
	}).Error; err != nil {
		return nil, err
	}
	return GetUser(db, user.ID)
}

// Register invites a new user: the account gets an unusable password and a
// long-lived setup token. Admins may create any role, qa may create qa and
// viewer accounts only.
func Register(db *gorm.DB, actorRole string, in UserInput) (*models.User, string, error) {
	role := models.RoleViewer
	if in.Role != nil && *in.Role != "" {
		role = *in.Role
	}
	switch actorRole {
	case models.RoleAdmin:
	case models.RoleQA:
		if role == models.RoleAdmin {
			return nil, "", fmt.Errorf("%w: qa users cannot create admin accounts", ErrForbidden)
		}
	default:
		return nil, "", fmt.Errorf("%w: role %q cannot register users", ErrForbidden, actorRole)
	}

	in.Role = &role
	in.Password = nil
	user, err := CreateUser(db, in)
	if err != nil {
		return nil, "", err
	}

	raw, err := setResetToken(db, user, InviteTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return user, raw, nil
}
