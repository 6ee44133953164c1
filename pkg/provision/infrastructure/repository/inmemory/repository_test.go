package inmemory_test

import (
	"testing"

	"github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/inmemory"
	"github.com/tigerroll/provisioner/pkg/provision/test"
)

func TestRepositoryContract(t *testing.T) {
	test.RunRepositoryContract(t, func(t *testing.T) test.Repositories {
		r := inmemory.NewRepository()
		return test.Repositories{Batches: r, Mappings: r.Mappings(), Mailboxes: r.Mailboxes()}
	})
}
