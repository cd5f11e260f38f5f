package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserRoles(t *testing.T) {
	admin := User{Role: RoleAdmin}
	super := User{Role: RoleSuperadmin}
	avocat := User{Role: RoleAvocat}
	client := User{Role: RoleClient}
	visiteur := User{Role: RoleVisiteur}

	assert.True(t, admin.IsAdmin())
	assert.True(t, super.IsAdmin())
	assert.False(t, avocat.IsAdmin())

	assert.True(t, avocat.IsStaff())
	assert.False(t, client.IsStaff())
	assert.False(t, visiteur.IsStaff())

	assert.True(t, IsValidRole("juriste"))
	assert.False(t, IsValidRole("owner"))
}

func TestHasCompleteProfile(t *testing.T) {
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	u := User{Name: "Amina", Surname: "Diallo", Phone: "0600000000", Nationality: "SN", Address: "1 rue X"}
	assert.False(t, u.HasCompleteProfile())
	u.DateOfBirth = &dob
	assert.True(t, u.HasCompleteProfile())
}

func TestTaskBeforeSaveStampsCompletion(t *testing.T) {
	task := Task{Status: TaskStatusTermine}
	assert.NoError(t, task.BeforeSave(nil))
	assert.NotNil(t, task.CompletedAt)

	task.Status = TaskStatusEnCours
	assert.NoError(t, task.BeforeSave(nil))
	assert.Nil(t, task.CompletedAt)
}
