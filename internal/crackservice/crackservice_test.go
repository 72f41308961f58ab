// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package crackservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	"github.com/unclesp1d3r/cipherswarm/internal/crackservice"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
	"github.com/unclesp1d3r/cipherswarm/internal/storetest"
)

type fixture struct {
	st         *store.Store
	hashList   *d.HashList
	campaign   *d.Campaign
	attack     *d.Attack
	task       *d.Task
	hashValue  []byte
}

func newFixture(t *testing.T) *fixture {
	st := storetest.New(t)
	ctx := context.Background()

	project := &d.Project{ID: d.NewID(), Name: "proj"}
	hashList := &d.HashList{ID: d.NewID(), Name: "list", HashTypeID: 1000}
	campaign := &d.Campaign{ID: d.NewID(), ProjectID: project.ID, Name: "camp", Priority: d.PriorityNormal, HashListID: hashList.ID}
	attack := &d.Attack{ID: d.NewID(), CampaignID: campaign.ID, AttackMode: d.AttackModeDictionary, HashMode: 1000, State: d.AttackRunning}
	hashValue := []byte("deadbeef")

	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateProject(project); err != nil {
			return err
		}
		if err := tx.CreateHashList(hashList); err != nil {
			return err
		}
		if err := tx.CreateCampaign(campaign); err != nil {
			return err
		}
		if err := tx.SetCampaignState(campaign.ID, d.CampaignActive); err != nil {
			return err
		}
		if err := tx.CreateAttack(attack); err != nil {
			return err
		}
		return tx.CreateHashItems([]*d.HashItem{{ID: d.NewID(), HashListID: hashList.ID, HashValue: hashValue}})
	}))

	var task *d.Task
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.CreateTask(attack.ID, d.NewID())
		if err != nil {
			return err
		}
		// accept_crack is only valid on a running task.
		if err := tx.SetTaskState(task.ID, d.TaskRunning); err != nil {
			return err
		}
		task.State = d.TaskRunning
		return nil
	}))

	return &fixture{st: st, hashList: hashList, campaign: campaign, attack: attack, task: task, hashValue: hashValue}
}

func TestSubmitCrackAppliesAndCompletesTask(t *testing.T) {
	fx := newFixture(t)
	svc := crackservice.New(fx.st, nil)

	res, err := svc.SubmitCrack(context.Background(), fx.task.ID, fx.hashValue, "hunter2", time.Now())
	require.NoError(t, err)
	assert.False(t, res.AlreadyCracked)
	assert.Equal(t, 0, res.UncrackedCount)
	assert.True(t, res.TaskCompleted, "the only hash item in the list was just cracked")

	gotAttack, err := fx.st.Read(context.Background()).GetAttack(fx.attack.ID)
	require.NoError(t, err)
	assert.Equal(t, d.AttackCompleted, gotAttack.State)

	gotCampaign, err := fx.st.Read(context.Background()).GetCampaign(fx.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, d.CampaignCompleted, gotCampaign.State)
}

func TestSubmitCrackIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	svc := crackservice.New(fx.st, nil)

	_, err := svc.SubmitCrack(context.Background(), fx.task.ID, fx.hashValue, "hunter2", time.Now())
	require.NoError(t, err)

	res, err := svc.SubmitCrack(context.Background(), fx.task.ID, fx.hashValue, "hunter2", time.Now())
	require.NoError(t, err)
	assert.True(t, res.AlreadyCracked)
}

func TestSubmitCrackRejectsEmptyPlainText(t *testing.T) {
	fx := newFixture(t)
	svc := crackservice.New(fx.st, nil)

	_, err := svc.SubmitCrack(context.Background(), fx.task.ID, fx.hashValue, "", time.Now())
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestSubmitCrackUnknownHashValue(t *testing.T) {
	fx := newFixture(t)
	svc := crackservice.New(fx.st, nil)

	_, err := svc.SubmitCrack(context.Background(), fx.task.ID, []byte("not-in-list"), "x", time.Now())
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindNotFound, apiErr.Kind)
}
