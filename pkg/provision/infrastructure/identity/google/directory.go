// Package google implements port.IdentityProvider on the Google Workspace Admin SDK Directory API.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// ProviderError is a failed Directory API call. Its message is the provider's own
// wording so the classifier can match it; the HTTP status is kept for transport fallback.
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusCode implements exception.StatusCoder.
func (e *ProviderError) StatusCode() int {
	return e.Status
}

var _ exception.StatusCoder = (*ProviderError)(nil)

// DirectoryClient creates and inspects Workspace users.
type DirectoryClient struct {
	service     *admin.Service
	orgUnitPath string
}

// NewDirectoryClient authenticates with a service account key using domain-wide delegation
// on behalf of cfg.AdminSubject.
func NewDirectoryClient(ctx context.Context, cfg config.GoogleIdentityConfig) (*DirectoryClient, error) {
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, exception.NewBatchErrorf("google_directory", exception.KindConfiguration,
			"failed to read credentials file %s", cfg.CredentialsFile, err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(key, admin.AdminDirectoryUserScope)
	if err != nil {
		return nil, exception.NewBatchError("google_directory", exception.KindConfiguration, "failed to parse service account key", err)
	}
	jwtCfg.Subject = cfg.AdminSubject

	return NewDirectoryClientWithOptions(ctx, cfg.OrgUnitPath, option.WithHTTPClient(jwtCfg.Client(ctx)))
}

// NewDirectoryClientWithOptions builds a client from explicit API options.
func NewDirectoryClientWithOptions(ctx context.Context, orgUnitPath string, opts ...option.ClientOption) (*DirectoryClient, error) {
	svc, err := admin.NewService(ctx, opts...)
	if err != nil {
		return nil, exception.NewBatchError("google_directory", exception.KindConfiguration, "failed to create directory service", err)
	}
	return &DirectoryClient{service: svc, orgUnitPath: orgUnitPath}, nil
}

func (c *DirectoryClient) CreateAccount(ctx context.Context, req port.CreateAccountRequest) (*port.IdentityUser, error) {
	orgUnit := req.OrgUnitPath
	if orgUnit == "" {
		orgUnit = c.orgUnitPath
	}
	user := &admin.User{
		PrimaryEmail: req.LocalPart + "@" + req.Domain,
		Name: &admin.UserName{
			GivenName:  req.FirstName,
			FamilyName: req.LastName,
		},
		Password:    req.Password,
		OrgUnitPath: orgUnit,
	}
	created, err := c.service.Users.Insert(user).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	logger.Debugf("Directory user %s created with id %s.", created.PrimaryEmail, created.Id)
	return &port.IdentityUser{ExternalID: created.Id, Email: created.PrimaryEmail}, nil
}

func (c *DirectoryClient) DeleteAccount(ctx context.Context, email string) error {
	if err := c.service.Users.Delete(email).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

func (c *DirectoryClient) GetAccountStatus(ctx context.Context, email string) (*port.IdentityAccountStatus, error) {
	u, err := c.service.Users.Get(email).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return &port.IdentityAccountStatus{
		ExternalID: u.Id,
		Email:      u.PrimaryEmail,
		Suspended:  u.Suspended,
		Archived:   u.Archived,
	}, nil
}

// wrapError keeps the provider wording and status of googleapi errors.
// A 404 is reworded so the classifier sees an account-not-found signal.
func wrapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	msg := gerr.Message
	if msg == "" && len(gerr.Errors) > 0 {
		msg = gerr.Errors[0].Message
	}
	if gerr.Code == 404 && !strings.Contains(strings.ToLower(msg), "domain") {
		msg = fmt.Sprintf("user not found: %s", msg)
	}
	if msg == "" {
		msg = gerr.Error()
	}
	return &ProviderError{Status: gerr.Code, Message: msg, Err: err}
}

var _ port.IdentityProvider = (*DirectoryClient)(nil)
