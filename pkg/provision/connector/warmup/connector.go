// Package warmup registers mailboxes with the deliverability warmup service.
package warmup

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

const moduleName = "warmup_connector"

// Logins are the plaintext SMTP and IMAP logins of a mailbox.
type Logins struct {
	SMTP port.MailServerLogin
	IMAP port.MailServerLogin
}

// Registration is the mapping-shaped outcome of a successful Connect.
type Registration struct {
	ExternalID string
	WarmupKey  string
	Snapshot   model.Properties
}

// Connector wraps a port.WarmupService.
type Connector struct {
	service port.WarmupService
}

// NewConnector creates a Connector.
func NewConnector(service port.WarmupService) *Connector {
	return &Connector{service: service}
}

// Connect validates the logins and registers the mailbox with the warmup service.
func (c *Connector) Connect(ctx context.Context, spec model.ConnectSpec, logins Logins) (*Registration, error) {
	if err := validateLogin("smtp", logins.SMTP); err != nil {
		return nil, err
	}
	if err := validateLogin("imap", logins.IMAP); err != nil {
		return nil, err
	}

	first, last := SplitDisplayName(spec.DisplayName, spec.Email)
	mailbox := port.WarmupMailbox{
		Email:     spec.Email,
		FirstName: first,
		LastName:  last,
		SMTP:      logins.SMTP,
		IMAP:      logins.IMAP,
		Settings:  spec.Warmup,
	}

	reg, err := c.service.Connect(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	return &Registration{
		ExternalID: reg.ExternalID,
		WarmupKey:  reg.WarmupKey,
		Snapshot: model.Properties{
			"email":             spec.Email,
			"warmup_key":        reg.WarmupKey,
			"enabled":           reg.Settings.Enabled,
			"daily_limit":       reg.Settings.DailyLimit,
			"ramp_up_increment": reg.Settings.RampUpIncrement,
			"reply_rate":        reg.Settings.ReplyRate,
		},
	}, nil
}

// UpdateSettings applies a partial settings update and returns the resulting settings.
func (c *Connector) UpdateSettings(ctx context.Context, externalID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error) {
	if patch.IsEmpty() {
		return nil, exception.NewBatchError(moduleName, exception.KindValidation, "settings patch is empty", nil)
	}
	return c.service.UpdateSettings(ctx, externalID, patch)
}

// Disconnect deprovisions the mailbox on the warmup side: it disables warmup,
// removes the mailbox from every campaign listing it and disconnects it. Every
// step runs even if an earlier one failed; the failures are returned together.
func (c *Connector) Disconnect(ctx context.Context, externalID string) error {
	var result *multierror.Error

	disabled := false
	if _, err := c.service.UpdateSettings(ctx, externalID, model.WarmupSettingsPatch{Enabled: &disabled}); err != nil {
		logger.Warnf("Failed to disable warmup for %s: %v", externalID, err)
		result = multierror.Append(result, err)
	}

	campaigns, err := c.service.ListCampaigns(ctx)
	if err != nil {
		logger.Warnf("Failed to list warmup campaigns: %v", err)
		result = multierror.Append(result, err)
	}
	for _, campaign := range campaigns {
		if !contains(campaign.AccountIDs, externalID) {
			continue
		}
		if err := c.service.RemoveFromCampaign(ctx, campaign.ID, externalID); err != nil {
			logger.Warnf("Failed to remove %s from campaign %s: %v", externalID, campaign.ID, err)
			result = multierror.Append(result, err)
		}
	}

	if err := c.service.Disconnect(ctx, externalID); err != nil {
		logger.Warnf("Failed to disconnect %s: %v", externalID, err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// SplitDisplayName splits "First Rest Of Name" into first token and remainder.
// When the display name is blank the local part of email becomes the first name.
func SplitDisplayName(displayName, email string) (first, last string) {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		local, _, _ := strings.Cut(email, "@")
		return local, ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func validateLogin(protocol string, l port.MailServerLogin) error {
	var missing []string
	if strings.TrimSpace(l.Host) == "" {
		missing = append(missing, "host")
	}
	if l.Port < 1 || l.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(l.Username) == "" {
		missing = append(missing, "username")
	}
	if l.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindInvalidCredentials,
			"%s credentials are incomplete: missing or invalid %s", protocol, strings.Join(missing, ", "))
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
