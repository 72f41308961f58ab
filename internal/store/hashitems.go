// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package store

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
)

// LockHashItemByValue row-locks (SELECT... FOR UPDATE) the HashItem with
// the given raw value within hashListID, the serialization point: crack
// application on a single hash item is serialized via row-level locking
// on that hash item.
func (t *Tx) LockHashItemByValue(hashListID uuid.UUID, value []byte) (*d.HashItem, error) {
	var g gormHashItem
	err := t.gdb().Set("gorm:query_option", "FOR UPDATE").
		Where("hash_list_id = ? AND hash_value = ?", hashListID, value).
		First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("hash not found in hash list")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// ApplyCrack writes plain_text/cracked/cracked_time/attack_id onto one
// HashItem row. Callers must already hold the row lock from
// LockHashItemByValue.
func (t *Tx) ApplyCrack(itemID uuid.UUID, plainText string, at time.Time, attackID uuid.UUID) error {
	return t.gdb().Model(&gormHashItem{}).Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"plain_text":   plainText,
			"cracked":      true,
			"cracked_time": at,
			"attack_id":    attackID,
			"updated_at":   time.Now(),
		}).Error
}

// PropagateCrack bulk-updates every still-uncracked HashItem sharing
// `value` across hash lists whose hash_type_id equals hashTypeID, other
// than sourceListID (already handled by ApplyCrack). The UPDATE is
// atomic with the triggering update because both run inside the same
// *Tx.
func (t *Tx) PropagateCrack(hashTypeID int, sourceListID uuid.UUID, value []byte, plainText string, at time.Time, attackID uuid.UUID) (int64, error) {
	res := t.gdb().Model(&gormHashItem{}).
		Joins("JOIN hash_lists ON hash_lists.id = hash_items.hash_list_id").
		Where("hash_lists.hash_type_id = ? AND hash_lists.id != ? AND hash_items.hash_value = ? AND hash_items.cracked = ?",
			hashTypeID, sourceListID, value, false).
		Updates(map[string]interface{}{
			"plain_text":   plainText,
			"cracked":      true,
			"cracked_time": at,
			"attack_id":    attackID,
			"updated_at":   time.Now(),
		})
	return res.RowsAffected, res.Error
}

// HashListsSharingType returns the IDs of all hash lists (including
// sourceListID) whose hash_type_id matches, used to find the campaigns/
// tasks to mark stale.
func (r *Reader) HashListsSharingType(hashTypeID int) ([]uuid.UUID, error) {
	var rows []gormHashList
	if err := r.gdb().Where("hash_type_id = ?", hashTypeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	return ids, nil
}

// AttackIDsForHashLists returns every attack (across any campaign) whose
// campaign targets one of the given hash lists, used to find tasks to
// mark stale.
func (r *Reader) AttackIDsForHashLists(hashListIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(hashListIDs) == 0 {
		return nil, nil
	}
	var rows []gormAttack
	err := r.gdb().
		Joins("JOIN campaigns ON campaigns.id = attacks.campaign_id").
		Where("campaigns.hash_list_id IN (?)", hashListIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	return ids, nil
}

// HashList is a plain read, used by crack submission.
func (r *Reader) HashList(id uuid.UUID) (*d.HashList, error) {
	var g gormHashList
	err := r.gdb().Where("id = ?", id).First(&g).Error
	if errNoRows(err) {
		return nil, apierr.NotFound("hash list not found")
	}
	if err != nil {
		return nil, err
	}
	return g.toDomain(), nil
}

// UncrackedCount returns |{i in hash_list h: !i.cracked}|.
func (r *Reader) UncrackedCount(hashListID uuid.UUID) (int, error) {
	var n int
	err := r.gdb().Model(&gormHashItem{}).
		Where("hash_list_id = ? AND cracked = ?", hashListID, false).Count(&n).Error
	return n, err
}

// UncrackedLines streams hash_list.uncracked_list: newline-delimited
// raw hash values, one per uncracked HashItem.
func (r *Reader) UncrackedLines(hashListID uuid.UUID, each func(hashValue []byte) error) error {
	rows, err := r.gdb().Model(&gormHashItem{}).
		Where("hash_list_id = ? AND cracked = ?", hashListID, false).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var g gormHashItem
		if err := r.gdb().ScanRows(rows, &g); err != nil {
			return err
		}
		if err := each(g.HashValue); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CrackedLines streams hash_list.cracked_list: newline-delimited
// "hash_value:plain_text" for every cracked HashItem.
func (r *Reader) CrackedLines(hashListID uuid.UUID, each func(hashValue []byte, plainText string) error) error {
	rows, err := r.gdb().Model(&gormHashItem{}).
		Where("hash_list_id = ? AND cracked = ?", hashListID, true).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var g gormHashItem
		if err := r.gdb().ScanRows(rows, &g); err != nil {
			return err
		}
		plain := ""
		if g.PlainText != nil {
			plain = *g.PlainText
		}
		if err := each(g.HashValue, plain); err != nil {
			return err
		}
	}
	return rows.Err()
}
