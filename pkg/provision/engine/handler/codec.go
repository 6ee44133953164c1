package handler

import (
	"errors"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/configbinder"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

const moduleName = "handler"

// Google Workspace mail servers used for stored credentials.
const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
	DefaultIMAPHost = "imap.gmail.com"
	DefaultIMAPPort = 993
)

// encodeItem converts a spec into ledger item data using its yaml tags.
func encodeItem(spec interface{}) (model.Properties, error) {
	props, err := configbinder.ToProperties(spec)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindValidation, "failed to encode item data", err)
	}
	return model.Properties(props), nil
}

// decodeItem binds ledger item data back into a spec.
func decodeItem(item *model.BatchItem, target interface{}) error {
	if err := configbinder.BindProperties(item.ItemData, target); err != nil {
		return exception.NewBatchErrorf(moduleName, exception.KindValidation, "failed to decode item %d", item.Index, err)
	}
	return nil
}

// mappingError translates a mapping store failure. A unique constraint violation
// means another writer connected the entity first.
func mappingError(provider model.Provider, internalID string, err error) error {
	if errors.Is(err, repository.ErrMappingConflict) {
		return exception.NewBatchErrorf(moduleName, exception.KindAlreadyConnected,
			"%s is already connected to %s", internalID, provider, err)
	}
	return exception.NewBatchErrorf(moduleName, exception.KindDatabase,
		"failed to persist %s mapping for %s", provider, internalID, err)
}

func alreadyConnected(provider model.Provider, internalID string) error {
	return exception.NewBatchErrorf(moduleName, exception.KindAlreadyConnected,
		"%s is already connected to %s", internalID, provider)
}

func databaseError(op string, err error) error {
	return exception.NewBatchErrorf(moduleName, exception.KindDatabase, "failed to %s", op, err)
}
