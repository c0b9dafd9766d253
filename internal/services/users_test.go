package services

import (
	"context"
	"testing"
	"time"

	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	issuer, err := auth.NewIssuer("test-secret-with-enough-entropy", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestCreateUserValidation(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := CreateUser(db, UserInput{Username: ptr("ana")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("not-an-email")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com"), Role: ptr("root")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com"), Password: ptr("short")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	user, err := CreateUser(db, UserInput{Username: ptr(" ana "), Email: ptr("Ana@Example.com")})
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, models.RoleViewer, user.Role)

	_, err = CreateUser(db, UserInput{Username: ptr("ANA"), Email: ptr("other@example.com")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLogin(t *testing.T) {
	db := testutil.OpenDB(t)
	issuer := newIssuer(t)
	_, err := CreateUser(db, UserInput{
		Username: ptr("ana"),
		Email:    ptr("ana@example.com"),
		Role:     ptr(models.RoleQA),
		Password: ptr("correct horse"),
	})
	require.NoError(t, err)

	token, user, err := Login(db, issuer, "ANA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, _, err = Login(db, issuer, "ana", "wrong horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = Login(db, issuer, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = Login(db, issuer, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPasswordResetFlow(t *testing.T) {
	db := testutil.OpenDB(t)
	issuer := newIssuer(t)
	_, err := CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com"), Password: ptr("first password")})
	require.NoError(t, err)

	user, raw, err := ForgotPassword(db, " ANA@example.com ")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotEmpty(t, raw)

	stored, err := GetUser(db, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, raw, stored.ResetPasswordToken, "only the hash is stored")

	valid, err := ValidateResetToken(db, raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, valid.ID)

	_, err = ResetPassword(db, raw, "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ResetPassword(db, raw, "second password")
	require.NoError(t, err)

	_, _, err = Login(db, issuer, "ana", "second password")
	assert.NoError(t, err)
	_, err = ValidateResetToken(db, raw)
	assert.ErrorIs(t, err, ErrInvalidInput, "tokens are single use")
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	db := testutil.OpenDB(t)

	user, raw, err := ForgotPassword(db, "ghost@example.com")
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, raw)
}

func TestExpiredResetToken(t *testing.T) {
	db := testutil.OpenDB(t)
	user, err := CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com")})
	require.NoError(t, err)

	raw, err := setResetToken(db, user, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateResetToken(db, raw)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterRoleRules(t *testing.T) {
	db := testutil.OpenDB(t)
	issuer := newIssuer(t)

	_, _, err := Register(db, models.RoleQA, UserInput{Username: ptr("boss"), Email: ptr("boss@example.com"), Role: ptr(models.RoleAdmin)})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = Register(db, models.RoleViewer, UserInput{Username: ptr("v"), Email: ptr("v@example.com")})
	assert.ErrorIs(t, err, ErrForbidden)

	user, raw, err := Register(db, models.RoleQA, UserInput{
		Username: ptr("tester"),
		Email:    ptr("tester@example.com"),
		Role:     ptr(models.RoleQA),
		Password: ptr("ignored password"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleQA, user.Role)

	_, _, err = Login(db, issuer, "tester", "ignored password")
	assert.ErrorIs(t, err, ErrUnauthorized, "invited accounts start without a usable password")

	invited, err := ValidateResetToken(db, raw)
	require.NoError(t, err)
	require.NotNil(t, invited.ResetPasswordExpires)
	assert.True(t, invited.ResetPasswordExpires.After(time.Now().Add(InviteTokenTTL-time.Hour)))

	admin, _, err := Register(db, models.RoleAdmin, UserInput{Username: ptr("root"), Email: ptr("root@example.com"), Role: ptr(models.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

func TestImportUsersReportsEachRow(t *testing.T) {
	db := testutil.OpenDB(t)

	results := ImportUsers(db, []UserInput{
		{Username: ptr("ana"), Email: ptr("ana@example.com"), Role: ptr(models.RoleQA)},
		{Username: ptr("ana"), Email: ptr("ana2@example.com")},
		{Username: ptr("bo")},
		{Username: ptr("cy"), Email: ptr("cy@example.com"), Password: ptr("long enough")},
	})
	require.Len(t, results, 4)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "already in use")
	assert.False(t, results[2].OK)
	assert.True(t, results[3].OK)
	assert.Equal(t, 4, results[3].Row)
	assert.Equal(t, "cy", results[3].Username)

	assert.EqualValues(t, 2, count(t, db, &models.User{}, ""))
}

func TestUpdateUser(t *testing.T) {
	db := testutil.OpenDB(t)
	ana, err := CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com")})
	require.NoError(t, err)
	_, err = CreateUser(db, UserInput{Username: ptr("bo"), Email: ptr("bo@example.com")})
	require.NoError(t, err)

	before, after, err := UpdateUser(db, ana.ID, UserInput{Name: ptr("Ana Maria"), Role: ptr(models.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, before.Role)
	assert.Equal(t, models.RoleAdmin, after.Role)
	assert.Equal(t, "Ana Maria", after.Name)

	_, _, err = UpdateUser(db, ana.ID, UserInput{Email: ptr("BO@example.com")})
	assert.ErrorIs(t, err, ErrConflict)

	// Renaming to the current username is not a conflict
	_, _, err = UpdateUser(db, ana.ID, UserInput{Username: ptr("ana")})
	assert.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	db := testutil.OpenDB(t)
	admin, err := CreateUser(db, UserInput{Username: ptr("admin"), Email: ptr("admin@example.com"), Role: ptr(models.RoleAdmin)})
	require.NoError(t, err)
	ana, err := CreateUser(db, UserInput{Username: ptr("ana"), Email: ptr("ana@example.com")})
	require.NoError(t, err)

	NewRecorder(db).Record(context.Background(), models.ActionCreate, MenuProjects, "p1", ana.ID, Created(map[string]any{"title": "P1"}))

	_, err = DeleteUser(db, admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	deleted, err := DeleteUser(db, ana.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", deleted.Username)

	var entry models.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Nil(t, entry.UserID, "audit history outlives the user")
}
