package sql

import (
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
)

// --- Mapper functions ---

func fromDomainBatch(b *model.BatchOperation) *BatchOperationEntity {
	return &BatchOperationEntity{
		ID:              b.ID,
		Kind:            string(b.Kind),
		Status:          string(b.Status),
		TotalItems:      b.TotalItems,
		ProcessedItems:  b.ProcessedItems,
		SuccessfulItems: b.SuccessfulItems,
		FailedItems:     b.FailedItems,
		SkippedItems:    b.SkippedItems,
		InputSnapshot:   b.InputSnapshot,
		StartedAt:       b.StartedAt,
		CompletedAt:     b.CompletedAt,
		CreatedAt:       b.CreatedAt.UTC(),
		LastUpdated:     b.LastUpdated.UTC(),
	}
}

func toDomainBatch(e *BatchOperationEntity) *model.BatchOperation {
	return &model.BatchOperation{
		ID:              e.ID,
		Kind:            model.BatchKind(e.Kind),
		Status:          model.BatchStatus(e.Status),
		TotalItems:      e.TotalItems,
		ProcessedItems:  e.ProcessedItems,
		SuccessfulItems: e.SuccessfulItems,
		FailedItems:     e.FailedItems,
		SkippedItems:    e.SkippedItems,
		InputSnapshot:   e.InputSnapshot,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		CreatedAt:       e.CreatedAt,
		LastUpdated:     e.LastUpdated,
	}
}

func fromDomainItem(i *model.BatchItem) *BatchItemEntity {
	return &BatchItemEntity{
		ID:           i.ID,
		BatchID:      i.BatchID,
		ItemIndex:    i.Index,
		ItemData:     i.ItemData,
		Status:       string(i.Status),
		ResultData:   i.ResultData,
		ErrorMessage: i.ErrorMessage,
		ErrorCode:    i.ErrorCode,
		Attempts:     i.Attempts,
		StartedAt:    i.StartedAt,
		CompletedAt:  i.CompletedAt,
	}
}

func toDomainItem(e *BatchItemEntity) *model.BatchItem {
	item := &model.BatchItem{
		ID:           e.ID,
		BatchID:      e.BatchID,
		Index:        e.ItemIndex,
		ItemData:     e.ItemData,
		Status:       model.ItemStatus(e.Status),
		ResultData:   e.ResultData,
		ErrorMessage: e.ErrorMessage,
		ErrorCode:    e.ErrorCode,
		Attempts:     e.Attempts,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
	}
	// An item without an outcome has no result, not an empty one.
	if len(item.ResultData) == 0 {
		item.ResultData = nil
	}
	return item
}

func fromDomainMapping(m *model.ExternalMapping) *ExternalMappingEntity {
	return &ExternalMappingEntity{
		ID:               m.ID,
		Provider:         string(m.Provider),
		InternalEntityID: m.InternalEntityID,
		ExternalEntityID: m.ExternalEntityID,
		SyncStatus:       string(m.SyncStatus),
		LastSyncedAt:     m.LastSyncedAt.UTC(),
		ExternalSnapshot: m.ExternalSnapshot,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

func toDomainMapping(e *ExternalMappingEntity) *model.ExternalMapping {
	return &model.ExternalMapping{
		ID:               e.ID,
		Provider:         model.Provider(e.Provider),
		InternalEntityID: e.InternalEntityID,
		ExternalEntityID: e.ExternalEntityID,
		SyncStatus:       model.SyncStatus(e.SyncStatus),
		LastSyncedAt:     e.LastSyncedAt,
		ExternalSnapshot: e.ExternalSnapshot,
		CreatedAt:        e.CreatedAt,
	}
}

func fromDomainAccount(a *model.MailboxAccount) *MailboxAccountEntity {
	return &MailboxAccountEntity{
		ID:        a.ID,
		Email:     a.Email,
		Status:    string(a.Status),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func toDomainAccount(e *MailboxAccountEntity) *model.MailboxAccount {
	return &model.MailboxAccount{
		ID:        e.ID,
		Email:     e.Email,
		Status:    model.AccountStatus(e.Status),
		UpdatedAt: e.UpdatedAt,
	}
}

func fromDomainCredentials(c *model.MailboxCredentials) *MailboxCredentialsEntity {
	return &MailboxCredentialsEntity{
		AccountID:         c.AccountID,
		Email:             c.Email,
		SMTPHost:          c.SMTP.Host,
		SMTPPort:          c.SMTP.Port,
		SMTPUsername:      c.SMTP.Username,
		SMTPPasswordToken: c.SMTP.PasswordToken,
		SMTPSecure:        c.SMTP.Secure,
		IMAPHost:          c.IMAP.Host,
		IMAPPort:          c.IMAP.Port,
		IMAPUsername:      c.IMAP.Username,
		IMAPPasswordToken: c.IMAP.PasswordToken,
		IMAPSecure:        c.IMAP.Secure,
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

func toDomainCredentials(e *MailboxCredentialsEntity) *model.MailboxCredentials {
	return &model.MailboxCredentials{
		AccountID: e.AccountID,
		Email:     e.Email,
		SMTP: model.MailEndpoint{
			Host:          e.SMTPHost,
			Port:          e.SMTPPort,
			Username:      e.SMTPUsername,
			PasswordToken: e.SMTPPasswordToken,
			Secure:        e.SMTPSecure,
		},
		IMAP: model.MailEndpoint{
			Host:          e.IMAPHost,
			Port:          e.IMAPPort,
			Username:      e.IMAPUsername,
			PasswordToken: e.IMAPPasswordToken,
			Secure:        e.IMAPSecure,
		},
		UpdatedAt: e.UpdatedAt,
	}
}
