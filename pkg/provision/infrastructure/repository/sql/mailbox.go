package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// SQLMailboxRepository implements repository.MailboxRepository.
type SQLMailboxRepository struct {
	r *SQLRepository
}

// Mailboxes returns the mailbox repository sharing r's connection.
func (r *SQLRepository) Mailboxes() *SQLMailboxRepository {
	return &SQLMailboxRepository{r: r}
}

func (m *SQLMailboxRepository) SaveAccount(ctx context.Context, account *model.MailboxAccount) error {
	const opName = "SQLMailboxRepository.SaveAccount"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return err
	}

	entity := fromDomainAccount(account)
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = time.Now().UTC()
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "status", "updated_at"}),
	}).Create(entity).Error
	if err != nil {
		return dbError(opName, fmt.Sprintf("failed to save account %s", account.ID), err)
	}
	return nil
}

func (m *SQLMailboxRepository) FindAccount(ctx context.Context, id string) (*model.MailboxAccount, error) {
	const opName = "SQLMailboxRepository.FindAccount"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity MailboxAccountEntity
	err = db.Where("id = ?", id).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrAccountNotFound
	}
	if err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to find account %s", id), err)
	}
	return toDomainAccount(&entity), nil
}

// SetAccountStatus upserts the status. An empty email keeps the stored one.
func (m *SQLMailboxRepository) SetAccountStatus(ctx context.Context, id, email string, status model.AccountStatus) error {
	const opName = "SQLMailboxRepository.SetAccountStatus"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return err
	}

	columns := []string{"status", "updated_at"}
	if email != "" {
		columns = append(columns, "email")
	}
	entity := &MailboxAccountEntity{ID: id, Email: email, Status: string(status), UpdatedAt: time.Now().UTC()}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(entity).Error
	if err != nil {
		return dbError(opName, fmt.Sprintf("failed to set status of account %s to %s", id, status), err)
	}
	return nil
}

func (m *SQLMailboxRepository) SaveCredentials(ctx context.Context, creds *model.MailboxCredentials) error {
	const opName = "SQLMailboxRepository.SaveCredentials"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return err
	}

	entity := fromDomainCredentials(creds)
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = time.Now().UTC()
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		UpdateAll: true,
	}).Create(entity).Error
	if err != nil {
		return dbError(opName, fmt.Sprintf("failed to save credentials of account %s", creds.AccountID), err)
	}
	return nil
}

func (m *SQLMailboxRepository) FindCredentials(ctx context.Context, accountID string) (*model.MailboxCredentials, error) {
	const opName = "SQLMailboxRepository.FindCredentials"
	db, err := m.r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity MailboxCredentialsEntity
	err = db.Where("account_id = ?", accountID).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrCredentialsNotFound
	}
	if err != nil {
		return nil, dbError(opName, fmt.Sprintf("failed to find credentials of account %s", accountID), err)
	}
	return toDomainCredentials(&entity), nil
}
