package sqlstore

import "github.com/goliatone/go-credentials/core"

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
