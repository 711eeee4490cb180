package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

const maxPutAttempts = 2

// Manager owns the credential lifecycle: it hands out authorization URLs,
// turns callbacks into stored credentials, and is the only path tokens are
// read through. Reads go to the store every time; expired records are
// refreshed behind a single-flight group so concurrent callers share one
// provider round trip.
type Manager struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	oauthStateStore   OAuthStateStore
	registry          Registry
	scopeRegistry     *ScopeRegistry
	store             CredentialStore
	refreshGroup      singleflight.Group
	nowFn             func() time.Time
}

func NewManager(cfg Config, options ...Option) (*Manager, error) {
	builder := defaultManagerBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credentials", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credentials"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewAdapterRegistry()
	}
	if builder.scopeRegistry == nil {
		builder.scopeRegistry = DefaultScopeRegistry()
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.credentialStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.credentialStore = storeProvider.CredentialStore()
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.credentialStore = storeProvider.CredentialStore()
		}
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(finalConfig.OAuth.StateTTL)
	}

	return &Manager{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		oauthStateStore:   builder.oauthStateStore,
		registry:          builder.registry,
		scopeRegistry:     builder.scopeRegistry,
		store:             builder.credentialStore,
		nowFn:             builder.nowFn,
	}, nil
}

func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

// ManagerDependencies exposes the resolved collaborators so host
// applications can reuse them when wiring their own components.
type ManagerDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	OAuthStateStore   OAuthStateStore
	Registry          Registry
	ScopeRegistry     *ScopeRegistry
	CredentialStore   CredentialStore
}

func (m *Manager) Dependencies() ManagerDependencies {
	if m == nil {
		return ManagerDependencies{}
	}
	return ManagerDependencies{
		Logger:            m.logger,
		LoggerProvider:    m.loggerProvider,
		MetricsRecorder:   m.metricsRecorder,
		ErrorFactory:      m.errorFactory,
		ErrorMapper:       m.errorMapper,
		SecretProvider:    m.secretProvider,
		PersistenceClient: m.persistenceClient,
		RepositoryFactory: m.repositoryFactory,
		ConfigProvider:    m.configProvider,
		OptionsResolver:   m.optionsResolver,
		OAuthStateStore:   m.oauthStateStore,
		Registry:          m.registry,
		ScopeRegistry:     m.scopeRegistry,
		CredentialStore:   m.store,
	}
}

// RegisterAdapter wires a provider flow adapter into the manager registry.
func (m *Manager) RegisterAdapter(adapter FlowAdapter) error {
	if m == nil || m.registry == nil {
		return fmt.Errorf("core: manager is not configured")
	}
	return m.mapError(m.registry.Register(adapter))
}

// InitiateAuthorization resolves the scope list for the pair, asks the
// adapter for an authorization URL, and records the CSRF state so the
// callback can be validated.
func (m *Manager) InitiateAuthorization(ctx context.Context, req InitiateAuthorizationRequest) (response BeginAuthResponse, err error) {
	if m == nil {
		return BeginAuthResponse{}, fmt.Errorf("core: manager is not configured")
	}
	startedAt := time.Now()
	fields := map[string]any{
		"provider": req.Provider,
		"service":  req.Service,
	}
	defer func() {
		m.observeOperation(ctx, startedAt, "initiate_authorization", err, fields)
	}()

	scopes, scopesErr := m.scopeRegistry.ScopesFor(req.Provider, req.Service)
	if scopesErr != nil {
		err = m.mapError(scopesErr)
		return BeginAuthResponse{}, err
	}
	adapter, adapterErr := m.resolveAdapter(req.Provider)
	if adapterErr != nil {
		err = m.mapError(adapterErr)
		return BeginAuthResponse{}, err
	}

	state := strings.TrimSpace(req.State)
	if state == "" {
		generated, genErr := generateOAuthState()
		if genErr != nil {
			err = m.mapError(genErr)
			return BeginAuthResponse{}, err
		}
		state = generated
	}

	response, beginErr := adapter.BeginAuth(ctx, BeginAuthRequest{
		Service:     req.Service,
		RedirectURI: req.RedirectURI,
		State:       state,
		Scopes:      scopes,
		Metadata:    copyAnyMap(req.Metadata),
	})
	if beginErr != nil {
		err = m.mapError(beginErr)
		return BeginAuthResponse{}, err
	}
	if strings.TrimSpace(response.State) == "" {
		response.State = state
	}
	if len(response.Scopes) == 0 {
		response.Scopes = append([]string(nil), scopes...)
	}

	if m.oauthStateStore != nil {
		saveErr := m.oauthStateStore.Save(ctx, OAuthStateRecord{
			State:       response.State,
			Provider:    req.Provider.Normalized(),
			Service:     req.Service.Normalized(),
			RedirectURI: strings.TrimSpace(req.RedirectURI),
			Scopes:      append([]string(nil), scopes...),
			Metadata:    copyAnyMap(req.Metadata),
		})
		if saveErr != nil {
			err = m.mapError(saveErr)
			return BeginAuthResponse{}, err
		}
	}

	return response, nil
}

// CompleteAuthorization validates the callback, exchanges the code, and
// persists the credential under its (principal, provider, service) key.
// Denied consent and exchange failures leave the store untouched.
func (m *Manager) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (stored StoredCredential, err error) {
	if m == nil {
		return StoredCredential{}, fmt.Errorf("core: manager is not configured")
	}
	startedAt := time.Now()
	fields := map[string]any{
		"provider": req.Provider,
		"service":  req.Service,
	}
	defer func() {
		m.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	if validateErr := req.Provider.Validate(); validateErr != nil {
		err = m.mapError(validateErr)
		return StoredCredential{}, err
	}
	if validateErr := req.Service.Validate(); validateErr != nil {
		err = m.mapError(validateErr)
		return StoredCredential{}, err
	}

	pending, stateErr := m.consumeCallbackState(ctx, req)
	if stateErr != nil {
		err = m.mapError(stateErr)
		return StoredCredential{}, err
	}

	// Consent and provider errors are checked only after the state is
	// consumed; a forged callback must not learn anything from ordering.
	if req.Payload.Denied() {
		err = m.mapError(fmt.Errorf("%w: %s", ErrUserDeniedConsent, describeCallbackError(req.Payload)))
		return StoredCredential{}, err
	}
	if strings.TrimSpace(req.Payload.Error) != "" {
		err = m.mapError(fmt.Errorf("%w: provider returned %s", ErrExchangeFailed, describeCallbackError(req.Payload)))
		return StoredCredential{}, err
	}
	if strings.TrimSpace(req.Payload.Code) == "" {
		err = m.mapError(fmt.Errorf("%w: callback code is required", ErrExchangeFailed))
		return StoredCredential{}, err
	}

	scopes := pending.Scopes
	if len(scopes) == 0 {
		resolved, scopesErr := m.scopeRegistry.ScopesFor(req.Provider, req.Service)
		if scopesErr != nil {
			err = m.mapError(scopesErr)
			return StoredCredential{}, err
		}
		scopes = resolved
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = pending.RedirectURI
	}

	adapter, adapterErr := m.resolveAdapter(req.Provider)
	if adapterErr != nil {
		err = m.mapError(adapterErr)
		return StoredCredential{}, err
	}

	record, exchangeErr := adapter.ExchangeCode(ctx, ExchangeRequest{
		Service:     req.Service,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		Payload:     req.Payload,
		Metadata:    copyAnyMap(req.Metadata),
	})
	if exchangeErr != nil {
		err = m.mapError(exchangeErr)
		return StoredCredential{}, err
	}

	record = record.Normalized(m.now())
	if record.Provider == "" {
		record.Provider = req.Provider.Normalized()
	}
	if record.Service == "" {
		record.Service = req.Service.Normalized()
	}
	if len(record.Scopes) == 0 {
		record.Scopes = append([]string(nil), scopes...)
	}
	if record.Principal == "" {
		err = m.mapError(fmt.Errorf("%w: adapter did not resolve a principal", ErrExchangeFailed))
		return StoredCredential{}, err
	}
	fields["principal"] = record.Principal

	stored, putErr := m.putLatest(ctx, record)
	if putErr != nil {
		err = m.mapError(putErr)
		return StoredCredential{}, err
	}
	return stored, nil
}

// GetCredentials is the sole read path. It always consults the store, and
// a record inside the safety skew is refreshed before being returned.
// Concurrent callers for the same key share one refresh.
func (m *Manager) GetCredentials(ctx context.Context, req GetCredentialsRequest) (result GetCredentialsResult, err error) {
	if m == nil {
		return GetCredentialsResult{}, fmt.Errorf("core: manager is not configured")
	}
	startedAt := time.Now()
	fields := map[string]any{
		"principal": req.Principal,
		"provider":  req.Provider,
		"service":   req.Service,
	}
	defer func() {
		m.observeOperation(ctx, startedAt, "get_credentials", err, fields)
	}()

	key := CredentialKey{
		Principal: req.Principal,
		Provider:  req.Provider,
		Service:   req.Service,
	}.Normalized()
	if validateErr := key.Validate(); validateErr != nil {
		err = m.mapError(validateErr)
		return GetCredentialsResult{}, err
	}
	if _, scopesErr := m.scopeRegistry.ScopesFor(key.Provider, key.Service); scopesErr != nil {
		err = m.mapError(scopesErr)
		return GetCredentialsResult{}, err
	}

	mode := req.OnRefreshError
	if mode == "" {
		mode = RefreshErrorRaise
	}

	stored, found, getErr := m.store.Get(ctx, key)
	if getErr != nil {
		err = m.mapError(getErr)
		return GetCredentialsResult{}, err
	}
	if !found {
		return GetCredentialsResult{}, nil
	}
	if CredentialValid(m.now(), stored.Record, m.refreshSkew()) {
		return GetCredentialsResult{Record: stored.Record.Clone(), Found: true}, nil
	}

	value, refreshErr, _ := m.refreshGroup.Do(key.String(), func() (any, error) {
		refreshed, flightErr := m.refreshStored(ctx, key)
		if flightErr != nil {
			return nil, flightErr
		}
		return refreshed, nil
	})
	if refreshErr != nil {
		if errors.Is(refreshErr, ErrRefreshFailed) && mode == RefreshErrorReturnAbsent {
			fields["refresh_suppressed"] = true
			return GetCredentialsResult{}, nil
		}
		err = m.mapError(refreshErr)
		return GetCredentialsResult{}, err
	}
	refreshed, ok := value.(StoredCredential)
	if !ok {
		err = m.mapError(fmt.Errorf("core: unexpected refresh result type %T", value))
		return GetCredentialsResult{}, err
	}
	return GetCredentialsResult{Record: refreshed.Record.Clone(), Found: true, Refreshed: true}, nil
}

// refreshStored runs inside the single-flight group. It re-reads the store
// first: a waiter that piggybacked on an earlier refresh may find the
// record already fresh and skip the provider call entirely. A failed
// refresh never writes.
func (m *Manager) refreshStored(ctx context.Context, key CredentialKey) (StoredCredential, error) {
	stored, found, err := m.store.Get(ctx, key)
	if err != nil {
		return StoredCredential{}, err
	}
	if !found {
		return StoredCredential{}, fmt.Errorf("%w: credential no longer exists for %s", ErrRefreshFailed, key)
	}
	now := m.now()
	if CredentialValid(now, stored.Record, m.refreshSkew()) {
		return stored, nil
	}
	if strings.TrimSpace(stored.Record.RefreshToken) == "" {
		return StoredCredential{}, fmt.Errorf("%w: no refresh token for %s, re-authorization required", ErrRefreshFailed, key)
	}

	adapter, ok := m.registry.Get(key.Provider)
	if !ok {
		return StoredCredential{}, fmt.Errorf("%w: %q", ErrAdapterNotFound, key.Provider)
	}

	refreshed, refreshErr := adapter.Refresh(ctx, stored.Record.Clone())
	if refreshErr != nil {
		if errors.Is(refreshErr, ErrRefreshFailed) {
			return StoredCredential{}, refreshErr
		}
		return StoredCredential{}, fmt.Errorf("%w: %w", ErrRefreshFailed, refreshErr)
	}

	refreshed = refreshed.Normalized(now)
	if refreshed.Principal == "" {
		refreshed.Principal = key.Principal
	}
	if refreshed.Provider == "" {
		refreshed.Provider = key.Provider
	}
	if refreshed.Service == "" {
		refreshed.Service = key.Service
	}
	// Providers may omit the refresh token on rotation-free refreshes;
	// losing it would strand the credential after the next expiry.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = stored.Record.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = append([]string(nil), stored.Record.Scopes...)
	}

	saved, putErr := m.store.Put(ctx, StoredCredential{Record: refreshed, Version: stored.Version})
	if putErr != nil {
		if errors.Is(putErr, ErrVersionConflict) {
			// Another writer landed first; adopt the winning record.
			latest, latestFound, readErr := m.store.Get(ctx, key)
			if readErr != nil {
				return StoredCredential{}, readErr
			}
			if latestFound {
				return latest, nil
			}
			return StoredCredential{}, fmt.Errorf("%w: credential disappeared during refresh of %s", ErrRefreshFailed, key)
		}
		return StoredCredential{}, putErr
	}
	return saved, nil
}

// putLatest performs the versioned write for a completed authorization. A
// version conflict means a concurrent writer landed between the read and
// the write; the fresh consent wins, so re-read and retry once.
func (m *Manager) putLatest(ctx context.Context, record CredentialRecord) (StoredCredential, error) {
	var lastErr error
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		existing, found, err := m.store.Get(ctx, record.Key())
		if err != nil {
			return StoredCredential{}, err
		}
		version := 0
		if found {
			version = existing.Version
		}
		stored, putErr := m.store.Put(ctx, StoredCredential{Record: record, Version: version})
		if putErr == nil {
			return stored, nil
		}
		if !errors.Is(putErr, ErrVersionConflict) {
			return StoredCredential{}, putErr
		}
		lastErr = putErr
	}
	return StoredCredential{}, lastErr
}

func (m *Manager) consumeCallbackState(ctx context.Context, req CompleteAuthorizationRequest) (OAuthStateRecord, error) {
	state := strings.TrimSpace(req.Payload.State)
	if state == "" {
		return OAuthStateRecord{}, fmt.Errorf("%w: callback state is required", ErrCsrfValidationFailed)
	}
	if m.oauthStateStore == nil {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state store is not configured")
	}
	record, err := m.oauthStateStore.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, ErrCsrfValidationFailed) {
			return OAuthStateRecord{}, err
		}
		return OAuthStateRecord{}, fmt.Errorf("%w: %w", ErrCsrfValidationFailed, err)
	}
	if record.Provider != "" && record.Provider != req.Provider.Normalized() {
		return OAuthStateRecord{}, fmt.Errorf("%w: state was issued for provider %q", ErrCsrfValidationFailed, record.Provider)
	}
	if record.Service != "" && record.Service != req.Service.Normalized() {
		return OAuthStateRecord{}, fmt.Errorf("%w: state was issued for service %q", ErrCsrfValidationFailed, record.Service)
	}
	return record, nil
}

func (m *Manager) resolveAdapter(provider Provider) (FlowAdapter, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	if m.registry == nil {
		return nil, fmt.Errorf("core: adapter registry is not configured")
	}
	adapter, ok := m.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAdapterNotFound, provider)
	}
	return adapter, nil
}

func (m *Manager) refreshSkew() time.Duration {
	if m == nil || m.config.RefreshSkew <= 0 {
		return DefaultRefreshSkew
	}
	return m.config.RefreshSkew
}

func (m *Manager) now() time.Time {
	if m == nil || m.nowFn == nil {
		return time.Now().UTC()
	}
	return m.nowFn().UTC()
}

func (m *Manager) mapError(err error) error {
	if err == nil {
		return nil
	}
	if m == nil || m.errorMapper == nil {
		return err
	}
	mapped := m.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func describeCallbackError(payload CallbackPayload) string {
	description := strings.TrimSpace(payload.ErrorDescription)
	code := strings.TrimSpace(payload.Error)
	if description == "" {
		return code
	}
	return code + " (" + description + ")"
}

var _ LifecycleManager = (*Manager)(nil)
