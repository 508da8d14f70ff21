package database

import (
	"context"
	"errors"

	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

// RunInTx runs fn inside one transaction. Any error from fn rolls the whole
// transaction back. Validation and not-found errors are returned as they are;
// every other failure is wrapped in a *utils.TransactionError.
func RunInTx(ctx context.Context, db *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return &utils.TransactionError{Op: op, Err: tx.Error}
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		if utils.IsValidation(err) || utils.IsTransaction(err) || errors.Is(err, utils.ErrNotFound) {
			return err
		}
		return &utils.TransactionError{Op: op, Err: err}
	}

	if err := tx.Commit().Error; err != nil {
		return &utils.TransactionError{Op: op, Err: err}
	}
	return nil
}
