package services

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lex_dossier_app_go/models"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("SecretPass123")
	require.NoError(t, err)
	assert.NotEqual(t, "SecretPass123", hash)
	assert.True(t, VerifyPassword(hash, "SecretPass123"))
	assert.False(t, VerifyPassword(hash, "WrongPass123"))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	db := setupTestDB(t)

	user, err := RegisterClient(db, RegisterInput{
		Name: "Awa", Surname: "Diallo", Email: "  Awa@Example.com ", Password: "Password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "awa@example.com", user.Email)
	assert.Equal(t, models.RoleClient, user.Role)
	assert.True(t, user.IsActive)

	_, err = RegisterClient(db, RegisterInput{Name: "A", Surname: "B", Email: "awa@example.com", Password: "Password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = RegisterClient(db, RegisterInput{Name: "A", Surname: "B", Email: "weak@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrValidation)

	logged, err := AuthenticateUser(db, "AWA@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.NotNil(t, logged.LastLoginAt)

	_, err = AuthenticateUser(db, "awa@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = AuthenticateUser(db, "ghost@example.com", "Password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Model(user).UpdateColumn("is_active", false).Error)
	_, err = AuthenticateUser(db, "awa@example.com", "Password123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	db := setupTestDB(t)
	_, err := CreateUser(db, CreateUserInput{Name: "A", Surname: "B", Email: "a@b.fr", Password: "Password123", Role: "pirate"})
	assert.ErrorIs(t, err, ErrValidation)

	staff, err := CreateUser(db, CreateUserInput{Name: "A", Surname: "B", Email: "a@b.fr", Password: "Password123", Role: models.RoleJuriste})
	require.NoError(t, err)
	assert.True(t, staff.IsStaff())
}

func TestTokenRoundTrip(t *testing.T) {
	user := &models.User{ID: "user-1", Role: models.RoleClient}

	token, expiresAt, err := IssueToken(testSecret, user, time.Hour, "admin-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleClient, claims.Role)
	assert.Equal(t, "admin-1", claims.ImpersonatorID)
}

func TestParseTokenFailures(t *testing.T) {
	user := &models.User{ID: "user-1", Role: models.RoleClient}

	expired, _, err := IssueToken(testSecret, user, -time.Minute, "")
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	valid, _, _ := IssueToken(testSecret, user, time.Hour, "")
	_, err = ParseToken("another-secret-another-secret-another", valid)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	tampered := valid[:strings.LastIndex(valid, ".")] + ".AAAA"
	_, err = ParseToken(testSecret, tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// alg=none is never accepted
	none := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{UserID: "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestUpdateUserGuards(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, models.RoleAdmin, "admin@cabinet.fr")
	superadmin := createTestUser(t, db, models.RoleSuperadmin, "boss@cabinet.fr")
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	role := models.RoleSuperadmin
	assert.ErrorIs(t, UpdateUser(db, admin, client, UserPatch{Role: &role}), ErrForbidden)

	name := "Nouveau"
	assert.ErrorIs(t, UpdateUser(db, admin, superadmin, UserPatch{Name: &name}), ErrForbidden)

	inactive := false
	assert.ErrorIs(t, UpdateUser(db, admin, admin, UserPatch{IsActive: &inactive}), ErrValidation)

	own := models.RoleClient
	assert.ErrorIs(t, UpdateUser(db, admin, admin, UserPatch{Role: &own}), ErrValidation)

	taken := "boss@cabinet.fr"
	assert.ErrorIs(t, UpdateUser(db, admin, client, UserPatch{Email: &taken}), ErrEmailTaken)

	require.NoError(t, UpdateUser(db, admin, client, UserPatch{IsActive: &inactive}))
	stored, err := GetUser(db, client.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	assert.ErrorIs(t, DeleteUser(db, admin, admin), ErrValidation)
	assert.ErrorIs(t, DeleteUser(db, admin, superadmin), ErrForbidden)
	require.NoError(t, DeleteUser(db, superadmin, client))
	_, err = GetUser(db, client.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfileCompletion(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	phone := "0601020304"
	require.NoError(t, UpdateProfile(db, client, ProfilePatch{Phone: &phone}))
	assert.False(t, client.ProfileCompleted)

	nationality, address := "Sénégalaise", "1 rue de la Paix"
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, UpdateProfile(db, client, ProfilePatch{Nationality: &nationality, Address: &address, DateOfBirth: &dob}))
	assert.True(t, client.ProfileCompleted)

	empty := ""
	assert.ErrorIs(t, UpdateProfile(db, client, ProfilePatch{Name: &empty}), ErrValidation)
}

func TestChangePassword(t *testing.T) {
	db := setupTestDB(t)
	client := createTestUser(t, db, models.RoleClient, "client@example.com")

	assert.ErrorIs(t, ChangePassword(db, client, "wrong", "NewPassword1"), ErrValidation)
	assert.ErrorIs(t, ChangePassword(db, client, "Password123", "weak"), ErrValidation)
	require.NoError(t, ChangePassword(db, client, "Password123", "NewPassword1"))

	_, err := AuthenticateUser(db, client.Email, "NewPassword1")
	assert.NoError(t, err)
}
