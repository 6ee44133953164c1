package inmemory

import (
	"context"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// MailboxRepository exposes the mailbox view of a Repository.
type MailboxRepository struct {
	r *Repository
}

// Mailboxes returns the mailbox repository backed by r.
func (r *Repository) Mailboxes() *MailboxRepository {
	return &MailboxRepository{r: r}
}

func (m *MailboxRepository) SaveAccount(ctx context.Context, account *model.MailboxAccount) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	c := *account
	m.r.accounts[account.ID] = &c
	return nil
}

func (m *MailboxRepository) FindAccount(ctx context.Context, id string) (*model.MailboxAccount, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	a, ok := m.r.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (m *MailboxRepository) SetAccountStatus(ctx context.Context, id, email string, status model.AccountStatus) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	a, ok := m.r.accounts[id]
	if !ok {
		a = &model.MailboxAccount{ID: id, Email: email}
		m.r.accounts[id] = a
	}
	if email != "" {
		a.Email = email
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MailboxRepository) SaveCredentials(ctx context.Context, creds *model.MailboxCredentials) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	c := *creds
	m.r.credentials[creds.AccountID] = &c
	return nil
}

func (m *MailboxRepository) FindCredentials(ctx context.Context, accountID string) (*model.MailboxCredentials, error) {
	m.r.mu.RLock()
	defer m.r.mu.RUnlock()
	c, ok := m.r.credentials[accountID]
	if !ok {
		return nil, repository.ErrCredentialsNotFound
	}
	cp := *c
	return &cp, nil
}
