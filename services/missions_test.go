package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/apperr"
	"ecodigital/baas/baastest"
	"ecodigital/models"
	"ecodigital/saga"
	"ecodigital/testdb"
	"ecodigital/utils"
)

func newMissions(db *gorm.DB, bucket *baastest.Bucket) *MissionService {
	s := NewMissionService(db, bucket, newProgression(db), zap.NewNop(), nil)
	s.Now = clock
	return s
}

func jpeg() *utils.Upload {
	return &utils.Upload{Ext: "jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestMissionListFilters(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	fresh := testdb.Mission(t, db, "Nova", 10)
	running := testdb.Mission(t, db, "Em andamento", 20)
	done := testdb.Mission(t, db, "Concluída", 30)
	testdb.UserMission(t, db, p.ID, running.ID, models.MissionInProgress)
	testdb.UserMission(t, db, p.ID, done.ID, models.MissionCompleted)

	s := newMissions(db, baastest.NewBucket("evidence"))

	ids := func(vs []MissionView) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.ID
		}
		return out
	}

	got, err := s.List(ctx, p.ID, FilterNew)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, ids(got))

	got, err = s.List(ctx, p.ID, FilterInProgress)
	require.NoError(t, err)
	assert.Equal(t, []string{running.ID}, ids(got))

	got, err = s.List(ctx, p.ID, FilterCompleted)
	require.NoError(t, err)
	assert.Equal(t, []string{done.ID}, ids(got))

	got, err = s.List(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = s.List(ctx, p.ID, "archived")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestMissionGetOrdersSteps(t *testing.T) {
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	m := testdb.Mission(t, db, "Faxina", 10, "abrir", "filtrar", "apagar")

	s := newMissions(db, baastest.NewBucket("evidence"))
	v, err := s.Get(context.Background(), p.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MissionPending, v.Status)
	require.Len(t, v.Steps, 3)
	for i, st := range v.Steps {
		assert.Equal(t, i+1, st.Order)
	}
	assert.Equal(t, "abrir", v.Steps[0].Text)

	_, err = s.Get(context.Background(), p.ID, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperr.ErrMissionNotFound)
}

func TestMissionStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	m := testdb.Mission(t, db, "Faxina", 10)
	s := newMissions(db, baastest.NewBucket("evidence"))

	first, started, err := s.Start(ctx, p.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, models.MissionInProgress, first.Status)

	again, started, err := s.Start(ctx, p.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.UserMission{}).Where("profile_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMissionStartPendingAndCompleted(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	s := newMissions(db, baastest.NewBucket("evidence"))

	pending := testdb.Mission(t, db, "Pendente", 10)
	row := testdb.UserMission(t, db, p.ID, pending.ID, models.MissionPending)
	um, started, err := s.Start(ctx, p.ID, pending.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, row.ID, um.ID)
	assert.Equal(t, models.MissionInProgress, um.Status)

	done := testdb.Mission(t, db, "Feita", 10)
	testdb.UserMission(t, db, p.ID, done.ID, models.MissionCompleted)
	_, _, err = s.Start(ctx, p.ID, done.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyDone)

	_, _, err = s.Start(ctx, p.ID, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperr.ErrMissionNotFound)
}

func TestMissionCompleteUploadsEvidence(t *testing.T) {
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 90)
	m := testdb.Mission(t, db, "Faxina", 10)
	testdb.UserMission(t, db, p.ID, m.ID, models.MissionInProgress)
	bucket := baastest.NewBucket("evidence")

	award, err := newMissions(db, bucket).Complete(context.Background(), p.ID, m.ID, jpeg())
	require.NoError(t, err)
	assert.True(t, award.RankedUp())

	key := fmt.Sprintf("%s/%s/%d.jpg", p.ID, m.ID, fixedNow.UnixMilli())
	assert.Equal(t, []string{key}, bucket.Keys())
	assert.Equal(t, "image/jpeg", bucket.ContentType(key))

	var um models.UserMission
	require.NoError(t, db.Where("profile_id = ?", p.ID).First(&um).Error)
	require.NotNil(t, um.EvidencePath)
	assert.Equal(t, key, *um.EvidencePath)
}

func TestMissionCompletePreconditions(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	bucket := baastest.NewBucket("evidence")
	s := newMissions(db, bucket)

	m := testdb.Mission(t, db, "Faxina", 10)
	_, err := s.Complete(ctx, p.ID, m.ID, nil)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = s.Complete(ctx, p.ID, m.ID, jpeg())
	assert.ErrorIs(t, err, apperr.ErrNotInProgress)

	_, err = s.Complete(ctx, p.ID, "00000000-0000-0000-0000-000000000000", jpeg())
	assert.ErrorIs(t, err, apperr.ErrMissionNotFound)

	done := testdb.Mission(t, db, "Feita", 10)
	testdb.UserMission(t, db, p.ID, done.ID, models.MissionCompleted)
	_, err = s.Complete(ctx, p.ID, done.ID, jpeg())
	assert.ErrorIs(t, err, apperr.ErrAlreadyDone)

	assert.Empty(t, bucket.Keys())
}

func TestMissionCompleteUploadFailureLeavesStateUntouched(t *testing.T) {
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	m := testdb.Mission(t, db, "Faxina", 10)
	testdb.UserMission(t, db, p.ID, m.ID, models.MissionInProgress)
	bucket := baastest.NewBucket("evidence")
	bucket.FailUpload = errors.New("503 slow down")

	_, err := newMissions(db, bucket).Complete(context.Background(), p.ID, m.ID, jpeg())
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpload, apperr.KindOf(err))

	var um models.UserMission
	require.NoError(t, db.Where("profile_id = ?", p.ID).First(&um).Error)
	assert.Equal(t, models.MissionInProgress, um.Status)
	assert.Empty(t, feedEntries(t, db))
}

func TestMissionCompleteRewardFailureDeletesEvidence(t *testing.T) {
	db := testdb.Open(t)
	c := testdb.Company(t, db, "Acme")
	p := testdb.Profile(t, db, "Ana Souza", models.RoleEmployee, c.ID, 0)
	m := testdb.Mission(t, db, "Faxina", 10)
	testdb.UserMission(t, db, p.ID, m.ID, models.MissionInProgress)
	bucket := baastest.NewBucket("evidence")

	s := newMissions(db, bucket)
	// The row moves on between the pre-check and the reward transaction.
	bucket.Now = func() time.Time {
		require.NoError(t, db.Model(&models.UserMission{}).Where("profile_id = ?", p.ID).
			Update("status", models.MissionCompleted).Error)
		return fixedNow
	}

	_, err := s.Complete(context.Background(), p.ID, m.ID, jpeg())
	assert.ErrorIs(t, err, apperr.ErrAlreadyDone)
	var sagaErr *saga.Error
	require.ErrorAs(t, err, &sagaErr)
	assert.True(t, sagaErr.RolledBack())
	assert.Empty(t, bucket.Keys())
}
